package catalog

import "testing"

func TestExtractID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    string
		want    string
		wantErr bool
	}{
		{
			name:  "raw id",
			input: "4uLU6hMCjMI75M1A2tKUQC",
			kind:  "track",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:  "share URL",
			input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123",
			kind:  "track",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:  "URI form",
			input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			kind:  "track",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:  "album URL",
			input: "https://open.spotify.com/album/6dVIqQ8qmQ5GBnJ9shOYGE",
			kind:  "album",
			want:  "6dVIqQ8qmQ5GBnJ9shOYGE",
		},
		{
			name:  "playlist URL",
			input: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			kind:  "playlist",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:  "whitespace trimmed",
			input: "  4uLU6hMCjMI75M1A2tKUQC  ",
			kind:  "track",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:    "empty input",
			input:   "",
			kind:    "track",
			wantErr: true,
		},
		{
			name:    "kind mismatch in URI",
			input:   "spotify:album:6dVIqQ8qmQ5GBnJ9shOYGE",
			kind:    "track",
			wantErr: true,
		},
		{
			name:    "kind mismatch in URL",
			input:   "https://open.spotify.com/album/6dVIqQ8qmQ5GBnJ9shOYGE",
			kind:    "track",
			wantErr: true,
		},
		{
			name:    "garbage input",
			input:   "not a valid id!",
			kind:    "track",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractID(tt.input, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ExtractID() = %v, want %v", got, tt.want)
			}
		})
	}
}
