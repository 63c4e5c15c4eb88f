package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ajitpratap0/foliosim/pkg/sim"
)

// MockAlerter is a test implementation of Alerter
type MockAlerter struct {
	alerts []Alert
	err    error
}

func NewMockAlerter(err error) *MockAlerter {
	return &MockAlerter{
		alerts: make([]Alert, 0),
		err:    err,
	}
}

func (m *MockAlerter) Send(ctx context.Context, alert Alert) error {
	m.alerts = append(m.alerts, alert)
	return m.err
}

func (m *MockAlerter) Name() string { return "mock" }

func TestNewManager(t *testing.T) {
	alerter1 := NewMockAlerter(nil)
	alerter2 := NewMockAlerter(nil)

	manager := NewManager(alerter1, alerter2)

	if manager == nil {
		t.Fatal("Expected non-nil manager")
	}

	if len(manager.alerters) != 2 {
		t.Errorf("Expected 2 alerters, got %d", len(manager.alerters))
	}
}

func TestNew_Disabled(t *testing.T) {
	manager, err := New(Config{Enabled: false, TelegramToken: "ignored"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if manager != nil {
		t.Fatal("Expected nil manager when alerting is disabled")
	}

	// A nil manager must swallow everything without panicking.
	if err := manager.Send(context.Background(), Alert{Title: "dropped"}); err != nil {
		t.Errorf("Unexpected error from nil manager: %v", err)
	}
	manager.RunFailed(context.Background(), "demo", "boom")
}

func TestNew_LogOnly(t *testing.T) {
	manager, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if manager == nil {
		t.Fatal("Expected non-nil manager")
	}
	if len(manager.alerters) != 1 {
		t.Fatalf("Expected 1 alerter, got %d", len(manager.alerters))
	}
	if manager.alerters[0].Name() != "log" {
		t.Errorf("Expected log alerter, got %q", manager.alerters[0].Name())
	}
}

func TestManager_Send(t *testing.T) {
	tests := []struct {
		name           string
		alert          Alert
		mockErr        error
		expectErr      bool
		checkTimestamp bool
	}{
		{
			name: "Successful send",
			alert: Alert{
				Title:    "Test Alert",
				Message:  "Test Message",
				Severity: SeverityInfo,
			},
			mockErr:        nil,
			expectErr:      false,
			checkTimestamp: true,
		},
		{
			name: "Send with error",
			alert: Alert{
				Title:    "Test Alert",
				Message:  "Test Message",
				Severity: SeverityWarning,
			},
			mockErr:   errors.New("send error"),
			expectErr: true,
		},
		{
			name: "Send with explicit timestamp",
			alert: Alert{
				Title:     "Test Alert",
				Message:   "Test Message",
				Severity:  SeverityCritical,
				Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			mockErr:        nil,
			expectErr:      false,
			checkTimestamp: false,
		},
		{
			name: "Send with metadata",
			alert: Alert{
				Title:    "Test Alert",
				Message:  "Test Message",
				Severity: SeverityInfo,
				Metadata: map[string]interface{}{
					"key1": "value1",
					"key2": 123,
				},
			},
			mockErr:   nil,
			expectErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAlerter := NewMockAlerter(tt.mockErr)
			manager := NewManager(mockAlerter)

			err := manager.Send(context.Background(), tt.alert)

			if tt.expectErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}

			if len(mockAlerter.alerts) != 1 {
				t.Fatalf("Expected 1 alert to be sent, got %d", len(mockAlerter.alerts))
			}

			sentAlert := mockAlerter.alerts[0]

			if sentAlert.Title != tt.alert.Title {
				t.Errorf("Expected title %q, got %q", tt.alert.Title, sentAlert.Title)
			}

			if sentAlert.Message != tt.alert.Message {
				t.Errorf("Expected message %q, got %q", tt.alert.Message, sentAlert.Message)
			}

			if sentAlert.Severity != tt.alert.Severity {
				t.Errorf("Expected severity %q, got %q", tt.alert.Severity, sentAlert.Severity)
			}

			if tt.checkTimestamp {
				if sentAlert.Timestamp.IsZero() {
					t.Error("Expected timestamp to be set, got zero value")
				}
			}
		})
	}
}

func TestManager_SendToMultipleAlerters(t *testing.T) {
	alerter1 := NewMockAlerter(nil)
	alerter2 := NewMockAlerter(errors.New("alerter2 error"))
	alerter3 := NewMockAlerter(nil)

	manager := NewManager(alerter1, alerter2, alerter3)

	alert := Alert{
		Title:    "Multi-send Test",
		Message:  "Testing multiple alerters",
		Severity: SeverityWarning,
	}

	err := manager.Send(context.Background(), alert)

	// Should return the last error (from alerter2)
	if err == nil {
		t.Error("Expected error from alerter2, got nil")
	}

	// All alerters should have received the alert
	if len(alerter1.alerts) != 1 {
		t.Errorf("Expected alerter1 to receive 1 alert, got %d", len(alerter1.alerts))
	}
	if len(alerter2.alerts) != 1 {
		t.Errorf("Expected alerter2 to receive 1 alert, got %d", len(alerter2.alerts))
	}
	if len(alerter3.alerts) != 1 {
		t.Errorf("Expected alerter3 to receive 1 alert, got %d", len(alerter3.alerts))
	}
}

func TestManager_SendCritical(t *testing.T) {
	mockAlerter := NewMockAlerter(nil)
	manager := NewManager(mockAlerter)

	err := manager.SendCritical(context.Background(), "Critical Test", "Critical message", map[string]interface{}{
		"test": "value",
	})

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if len(mockAlerter.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mockAlerter.alerts))
	}

	alert := mockAlerter.alerts[0]
	if alert.Title != "Critical Test" {
		t.Errorf("Expected title 'Critical Test', got %q", alert.Title)
	}
	if alert.Severity != SeverityCritical {
		t.Errorf("Expected severity CRITICAL, got %q", alert.Severity)
	}
	if alert.Metadata["test"] != "value" {
		t.Errorf("Expected metadata test='value', got %v", alert.Metadata["test"])
	}
}

func TestManager_SendWarning(t *testing.T) {
	mockAlerter := NewMockAlerter(nil)
	manager := NewManager(mockAlerter)

	err := manager.SendWarning(context.Background(), "Warning Test", "Warning message", nil)

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if len(mockAlerter.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mockAlerter.alerts))
	}

	alert := mockAlerter.alerts[0]
	if alert.Severity != SeverityWarning {
		t.Errorf("Expected severity WARNING, got %q", alert.Severity)
	}
}

func TestManager_SendInfo(t *testing.T) {
	mockAlerter := NewMockAlerter(nil)
	manager := NewManager(mockAlerter)

	err := manager.SendInfo(context.Background(), "Info Test", "Info message", nil)

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if len(mockAlerter.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mockAlerter.alerts))
	}

	alert := mockAlerter.alerts[0]
	if alert.Severity != SeverityInfo {
		t.Errorf("Expected severity INFO, got %q", alert.Severity)
	}
}

func TestManager_RunCompleted(t *testing.T) {
	mockAlerter := NewMockAlerter(nil)
	manager := NewManager(mockAlerter)

	result := &sim.RunResult{
		Name:        "demo",
		Success:     true,
		TotalCycles: 30,
		FinalSummary: sim.FinalSummary{
			FinalCapital: 112000,
			TotalReturn:  0.12,
		},
	}

	manager.RunCompleted(context.Background(), result)

	if len(mockAlerter.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mockAlerter.alerts))
	}

	alert := mockAlerter.alerts[0]
	if alert.Severity != SeverityInfo {
		t.Errorf("Expected INFO severity, got %q", alert.Severity)
	}
	if alert.Title != "Simulation Run Completed" {
		t.Errorf("Unexpected title %q", alert.Title)
	}
	if !strings.Contains(alert.Message, "+12.00%") {
		t.Errorf("Expected return in message, got %q", alert.Message)
	}
	if !strings.Contains(alert.Message, "30 cycles") {
		t.Errorf("Expected cycle count in message, got %q", alert.Message)
	}
	if alert.Metadata["final_capital"] != 112000.0 {
		t.Errorf("Expected final_capital 112000, got %v", alert.Metadata["final_capital"])
	}
	if alert.Metadata["run"] != "demo" {
		t.Errorf("Expected run demo, got %v", alert.Metadata["run"])
	}

	// A nil result must not send anything.
	manager.RunCompleted(context.Background(), nil)
	if len(mockAlerter.alerts) != 1 {
		t.Errorf("Expected nil result to be dropped, got %d alerts", len(mockAlerter.alerts))
	}
}

func TestManager_RunFailed(t *testing.T) {
	mockAlerter := NewMockAlerter(nil)
	manager := NewManager(mockAlerter)

	manager.RunFailed(context.Background(), "demo", "empty universe")

	if len(mockAlerter.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mockAlerter.alerts))
	}

	alert := mockAlerter.alerts[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("Expected CRITICAL severity, got %q", alert.Severity)
	}
	if alert.Title != "Simulation Run Failed" {
		t.Errorf("Unexpected title %q", alert.Title)
	}
	if !strings.Contains(alert.Message, "empty universe") {
		t.Errorf("Expected reason in message, got %q", alert.Message)
	}
	if alert.Metadata["reason"] != "empty universe" {
		t.Errorf("Expected reason metadata, got %v", alert.Metadata["reason"])
	}
}

func TestManager_ProtectionEntered(t *testing.T) {
	mockAlerter := NewMockAlerter(nil)
	manager := NewManager(mockAlerter)

	rec := &sim.CycleRecord{
		CycleNumber:      17,
		MarketRegime:     "bear",
		ProtectionActive: true,
		TotalValue:       98000,
	}

	manager.ProtectionEntered(context.Background(), "demo", rec)

	if len(mockAlerter.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(mockAlerter.alerts))
	}

	alert := mockAlerter.alerts[0]
	if alert.Severity != SeverityWarning {
		t.Errorf("Expected WARNING severity, got %q", alert.Severity)
	}
	if !strings.Contains(alert.Message, "cycle 17") {
		t.Errorf("Expected cycle number in message, got %q", alert.Message)
	}
	if !strings.Contains(alert.Message, "bear") {
		t.Errorf("Expected regime in message, got %q", alert.Message)
	}
	if alert.Metadata["cycle"] != 17 {
		t.Errorf("Expected cycle 17, got %v", alert.Metadata["cycle"])
	}

	// A nil record must not send anything.
	manager.ProtectionEntered(context.Background(), "demo", nil)
	if len(mockAlerter.alerts) != 1 {
		t.Errorf("Expected nil record to be dropped, got %d alerts", len(mockAlerter.alerts))
	}
}

func TestManager_NilNotifications(t *testing.T) {
	var manager *Manager

	// None of these may panic on a nil manager.
	manager.RunCompleted(context.Background(), &sim.RunResult{Name: "demo"})
	manager.RunFailed(context.Background(), "demo", "boom")
	manager.ProtectionEntered(context.Background(), "demo", &sim.CycleRecord{CycleNumber: 1})

	if err := manager.SendInfo(context.Background(), "t", "m", nil); err != nil {
		t.Errorf("Unexpected error from nil manager: %v", err)
	}
}

func TestLogAlerter_Send(t *testing.T) {
	alerter := NewLogAlerter()

	if alerter.Name() != "log" {
		t.Errorf("Expected name 'log', got %q", alerter.Name())
	}

	tests := []struct {
		name     string
		severity Severity
	}{
		{"Critical alert", SeverityCritical},
		{"Warning alert", SeverityWarning},
		{"Info alert", SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := Alert{
				Title:     "Log Test",
				Message:   "Log test message",
				Severity:  tt.severity,
				Timestamp: time.Now(),
				Metadata: map[string]interface{}{
					"test_key": "test_value",
				},
			}

			err := alerter.Send(context.Background(), alert)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestSeverityConstants(t *testing.T) {
	if SeverityInfo != "INFO" {
		t.Errorf("Expected SeverityInfo to be 'INFO', got %q", SeverityInfo)
	}
	if SeverityWarning != "WARNING" {
		t.Errorf("Expected SeverityWarning to be 'WARNING', got %q", SeverityWarning)
	}
	if SeverityCritical != "CRITICAL" {
		t.Errorf("Expected SeverityCritical to be 'CRITICAL', got %q", SeverityCritical)
	}
}
