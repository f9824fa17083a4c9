package link

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"simple", "status/lastwill", false},
		{"single level", "a", false},
		{"max length", strings.Repeat("x", MaxTopicLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("x", MaxTopicLength+1), true},
		{"plus wildcard", "sensor/+", true},
		{"hash wildcard", "sensor/#", true},
		{"nul byte", "sensor\x00x", true},
		{"invalid utf8", "sensor/\xff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTopicName(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateTopicName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("validateTopicName() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"sensor/temperature", false},
		{"sensor/+/temperature", false},
		{"sensor/#", false},
		{"#", false},
		{"+", false},
		{"+/+", false},
		{"sensor/te+", true},
		{"sensor/#/temperature", true},
		{"sensor#", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := validateTopicFilter(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTopicFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
		})
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"#", "a/b", true},
		{"+", "a", true},
		{"+", "a/b", false},
		{"#", "$SYS/broker", false},
		{"+/broker", "$SYS/broker", false},
		{"$SYS/#", "$SYS/broker", true},
		{"a/b/c", "a/b", false},
	}

	for _, tt := range tests {
		if got := MatchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
