package peer

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEServers turns STUN/TURN URLs into pion server entries, one per URL.
// Blank entries are skipped; an empty result means host candidates only.
func ICEServers(urls []string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

func newAPI(loopback bool) *webrtc.API {
	settings := webrtc.SettingEngine{}
	// Loopback candidates let two clients on one machine (and tests) connect.
	settings.SetIncludeLoopbackCandidate(loopback)
	return webrtc.NewAPI(webrtc.WithSettingEngine(settings))
}
