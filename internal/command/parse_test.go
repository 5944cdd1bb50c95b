package command

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		prefix     string
		wantName   string
		wantArgs   []string
		wantReject string
	}{
		{
			name:     "simple command",
			raw:      "!help",
			wantName: "help",
		},
		{
			name:     "command with args",
			raw:      "!ack 12345",
			wantName: "ack",
			wantArgs: []string{"12345"},
		},
		{
			name:     "surrounding whitespace trimmed",
			raw:      "   !ack 12345   ",
			wantName: "ack",
			wantArgs: []string{"12345"},
		},
		{
			name:     "name lowercased, args untouched",
			raw:      "!ESCALATE 12345 Lateral Movement",
			wantName: "escalate",
			wantArgs: []string{"12345", "Lateral", "Movement"},
		},
		{
			name:       "missing prefix",
			raw:        "status",
			wantReject: "Commands must start with !",
		},
		{
			name:       "bare prefix",
			raw:        "!",
			wantReject: "Please provide a command. Try !help to see available commands.",
		},
		{
			name:       "prefix then whitespace",
			raw:        "!   ",
			wantReject: "Please provide a command. Try !help to see available commands.",
		},
		{
			name:     "custom prefix",
			raw:      "?help",
			prefix:   "?",
			wantName: "help",
		},
		{
			name:       "wrong prefix for platform",
			raw:        "!help",
			prefix:     "?",
			wantReject: "Commands must start with ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, reject := Parse(tt.raw, tt.prefix)
			if reject != tt.wantReject {
				t.Fatalf("reject = %q, want %q", reject, tt.wantReject)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if len(args) != 0 || len(tt.wantArgs) != 0 {
				if !reflect.DeepEqual(args, tt.wantArgs) {
					t.Errorf("args = %v, want %v", args, tt.wantArgs)
				}
			}
		})
	}
}
