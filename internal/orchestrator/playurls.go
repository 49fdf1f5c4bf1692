package orchestrator

import (
	"net"
	"net/url"
	"path"
	"strings"
)

// PlayURLs are the playback addresses derived for a stream.
type PlayURLs struct {
	HLS  string `json:"hls,omitempty"`
	FLV  string `json:"flv,omitempty"`
	RTMP string `json:"rtmp,omitempty"`
}

// MediaServer locates the media server that repackages ingest for playback.
type MediaServer struct {
	Host     string
	HLSPort  string
	RTMPPort string
}

// BuildPlayURLs derives playback URLs from a stream's ingest URL and transport.
// HLS streams play as-is; RTMP and FLV ingest is served by the media server
// under /live/<name>. The HLS URL is never empty when the stream has a URL.
func BuildPlayURLs(s StreamRecord, media MediaServer) PlayURLs {
	var p PlayURLs
	switch s.Type {
	case TransportHLS:
		p.HLS = s.URL
		if strings.Contains(s.URL, ".m3u8") {
			p.FLV = strings.Replace(s.URL, ".m3u8", ".flv", 1)
		}
	case TransportRTMP:
		name := streamName(s.URL)
		p.HLS = media.liveURL(name, ".m3u8")
		p.FLV = media.liveURL(name, ".flv")
		p.RTMP = media.rtmpURL(s.URL)
	case TransportFLV:
		p.FLV = s.URL
		if strings.Contains(s.URL, ".flv") {
			p.HLS = media.liveURL(streamName(s.URL), ".m3u8")
		}
	}
	if p.HLS == "" {
		p.HLS = s.URL
	}
	return p
}

func (m MediaServer) liveURL(name, ext string) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(m.Host, m.HLSPort),
		Path:   "/live/" + name + ext,
	}
	return u.String()
}

// rtmpURL points a loopback RTMP ingest URL at the media server.
func (m MediaServer) rtmpURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "rtmp" {
		return raw
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "":
		port := u.Port()
		if port == "" {
			port = m.RTMPPort
		}
		u.Host = net.JoinHostPort(m.Host, port)
	}
	return u.String()
}

// streamName is the last path element without its extension,
// e.g. rtmp://host/live/stream1 -> stream1.
func streamName(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(strings.TrimRight(p, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return "stream"
	}
	return base
}
