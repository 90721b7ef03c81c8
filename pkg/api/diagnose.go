package api

import (
	"fmt"
	"net/http"
	"time"

	"packwire/pkg/store"
	"packwire/pkg/vpn"
	"packwire/pkg/wireguard"
)

// DiagnoseResult captures a single check outcome.
type DiagnoseResult struct {
	Check    string `json:"check"`
	Status   string `json:"status"`   // ok/warn/fail/info
	Severity string `json:"severity"` // mirrors status for UI coloring
	Detail   string `json:"detail"`
}

type DiagnoseResponse struct {
	Summary   string           `json:"summary"`
	Results   []DiagnoseResult `json:"results"`
	Timestamp time.Time        `json:"timestamp"`
}

// DiagnoseHandler runs readiness checks over the tunnel device, the peer
// store and the address pool.
type DiagnoseHandler struct {
	Service     *vpn.Service
	Store       store.PeerStore
	Tunnel      wireguard.ControlPlane
	RequireAuth bool
}

func (h *DiagnoseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/admin/vpn/diagnose", AuthMiddleware(h.handleDiagnose, h.RequireAuth))
}

func (h *DiagnoseHandler) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.diagnose())
}

func (h *DiagnoseHandler) diagnose() DiagnoseResponse {
	now := time.Now()
	results := []DiagnoseResult{}
	failing := 0

	status := h.Tunnel.DeviceStatus()
	switch status {
	case wireguard.StatusRunning:
		results = append(results, check("tunnel device", "ok", "device is up"))
	case wireguard.StatusStopped:
		results = append(results, check("tunnel device", "fail", "wireguard available but device is not up"))
		failing++
	default:
		results = append(results, check("tunnel device", "fail", "wireguard support not available"))
		failing++
	}

	if key, err := h.Tunnel.PublicKey(); err != nil {
		results = append(results, check("server keypair", "fail", fmt.Sprintf("cannot read device key: %v", err)))
		failing++
	} else {
		results = append(results, check("server keypair", "ok", "public key "+key))
	}

	if p, ok := h.Store.(interface{ Ping() error }); ok {
		if err := p.Ping(); err != nil {
			results = append(results, check("peer store", "fail", fmt.Sprintf("store unreachable: %v", err)))
			failing++
		} else {
			results = append(results, check("peer store", "ok", "store reachable"))
		}
	} else {
		results = append(results, check("peer store", "info", "backend has no readiness probe"))
	}

	if used, capacity, err := h.Service.PoolUsage(); err != nil {
		results = append(results, check("address pool", "warn", fmt.Sprintf("cannot read pool usage: %v", err)))
	} else {
		detail := fmt.Sprintf("%d of %d addresses assigned", used, capacity)
		switch {
		case capacity > 0 && used >= capacity:
			results = append(results, check("address pool", "fail", detail))
			failing++
		case capacity > 0 && used*10 >= capacity*9:
			results = append(results, check("address pool", "warn", detail))
		default:
			results = append(results, check("address pool", "ok", detail))
		}
	}

	summary := "all checks passed"
	if failing > 0 {
		summary = fmt.Sprintf("%d check(s) failing", failing)
	}
	return DiagnoseResponse{Summary: summary, Results: results, Timestamp: now}
}

func check(name, status, detail string) DiagnoseResult {
	return DiagnoseResult{Check: name, Status: status, Severity: status, Detail: detail}
}
