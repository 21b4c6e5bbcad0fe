package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/xavierca1/leadflow/internal/infra/metrics"
	"github.com/xavierca1/leadflow/internal/usecase"
)

type LeadSubmitter interface {
	Execute(ctx context.Context, input usecase.SubmitLeadInput) (*usecase.SubmitLeadOutput, error)
}

// LeadHandler serves the public lead form.
type LeadHandler struct {
	submitter      LeadSubmitter
	trustedProxies []netip.Prefix
}

func NewLeadHandler(submitter LeadSubmitter, trustedProxies []netip.Prefix) *LeadHandler {
	return &LeadHandler{submitter: submitter, trustedProxies: trustedProxies}
}

func (h *LeadHandler) CaptureLead(w http.ResponseWriter, r *http.Request) {
	var draft usecase.LeadDraft
	if !decodeJSON(w, r, &draft, false) {
		metrics.RecordLeadSubmission("invalid")
		return
	}

	out, err := h.submitter.Execute(r.Context(), usecase.SubmitLeadInput{
		IPAddress: clientIP(r, h.trustedProxies),
		UserAgent: r.UserAgent(),
		Draft:     draft,
	})
	if err != nil {
		metrics.RecordLeadSubmission(submissionResult(err))
		writeError(w, r, err)
		return
	}

	metrics.RecordLeadSubmission("accepted")
	writeJSON(w, http.StatusOK, out)
}

func submissionResult(err error) string {
	var verr *usecase.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, usecase.ErrRateLimited):
		return "rate_limited"
	}
	return "error"
}

// clientIP resolves the address the per-IP limit applies to. Forwarding
// headers are only read when the peer is a trusted proxy; X-Forwarded-For is
// then walked from the right and the first untrusted hop wins, so a client
// cannot pick its own address by prepending hops.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := peerAddr(r.RemoteAddr)
	if !peer.IsValid() {
		return r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		var leftmost netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return peer.String()
			}
			hop = hop.Unmap()
			if !isTrusted(hop, trusted) {
				return hop.String()
			}
			leftmost = hop
		}
		if leftmost.IsValid() {
			return leftmost.String()
		}
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer.String()
}

func peerAddr(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
