package orchestrator

import "testing"

func TestBuildPlayURLs(t *testing.T) {
	media := MediaServer{Host: "10.0.0.5", HLSPort: "8086", RTMPPort: "1935"}

	tests := []struct {
		name   string
		stream StreamRecord
		want   PlayURLs
	}{
		{
			name:   "hls plays directly",
			stream: StreamRecord{Type: TransportHLS, URL: "https://cdn.example.com/live/a.m3u8"},
			want:   PlayURLs{HLS: "https://cdn.example.com/live/a.m3u8", FLV: "https://cdn.example.com/live/a.flv"},
		},
		{
			name:   "hls without m3u8 extension",
			stream: StreamRecord{Type: TransportHLS, URL: "https://cdn.example.com/live/a"},
			want:   PlayURLs{HLS: "https://cdn.example.com/live/a"},
		},
		{
			name:   "rtmp is repackaged",
			stream: StreamRecord{Type: TransportRTMP, URL: "rtmp://localhost/live/stream1"},
			want: PlayURLs{
				HLS:  "http://10.0.0.5:8086/live/stream1.m3u8",
				FLV:  "http://10.0.0.5:8086/live/stream1.flv",
				RTMP: "rtmp://10.0.0.5:1935/live/stream1",
			},
		},
		{
			name:   "rtmp on a remote host is kept",
			stream: StreamRecord{Type: TransportRTMP, URL: "rtmp://ingest.example.com:1940/app/key"},
			want: PlayURLs{
				HLS:  "http://10.0.0.5:8086/live/key.m3u8",
				FLV:  "http://10.0.0.5:8086/live/key.flv",
				RTMP: "rtmp://ingest.example.com:1940/app/key",
			},
		},
		{
			name:   "flv gains hls",
			stream: StreamRecord{Type: TransportFLV, URL: "http://origin.example.com/live/show.flv"},
			want: PlayURLs{
				HLS: "http://10.0.0.5:8086/live/show.m3u8",
				FLV: "http://origin.example.com/live/show.flv",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildPlayURLs(tt.stream, media); got != tt.want {
				t.Errorf("BuildPlayURLs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStreamName(t *testing.T) {
	cases := map[string]string{
		"rtmp://localhost/live/stream1":  "stream1",
		"http://host/live/show.flv":      "show",
		"http://host/":                   "stream",
		"rtmp://localhost/live/stream1/": "stream1",
	}
	for in, want := range cases {
		if got := streamName(in); got != want {
			t.Errorf("streamName(%q) = %q, want %q", in, got, want)
		}
	}
}
