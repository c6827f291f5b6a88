package permit

import "testing"

func TestRequestToArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want map[string]any
	}{
		{
			name: "plain name",
			req:  Request{Name: Geolocation},
			want: map[string]any{"name": "geolocation"},
		},
		{
			name: "midi without sysex",
			req:  Request{Name: MIDI},
			want: map[string]any{"name": "midi"},
		},
		{
			name: "midi with sysex",
			req:  Request{Name: MIDI, Sysex: true},
			want: map[string]any{"name": "midi", "sysex": true},
		},
		{
			name: "push with userVisibleOnly",
			req:  Request{Name: Push, UserVisibleOnly: true},
			want: map[string]any{"name": "push", "userVisibleOnly": true},
		},
		{
			name: "push without userVisibleOnly",
			req:  Request{Name: Push},
			want: map[string]any{"name": "push"},
		},
		{
			name: "sysex ignored off midi",
			req:  Request{Name: Camera, Sysex: true},
			want: map[string]any{"name": "camera"},
		},
		{
			name: "userVisibleOnly ignored off push",
			req:  Request{Name: MIDI, UserVisibleOnly: true},
			want: map[string]any{"name": "midi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.req.toArgs()
			if len(got) != len(tt.want) {
				t.Fatalf("expected args %v, got %v", tt.want, got)
			}
			for key, want := range tt.want {
				if got[key] != want {
					t.Errorf("expected %s=%v, got %v", key, want, got[key])
				}
			}
		})
	}
}
