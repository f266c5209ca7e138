package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"civicledger/core/auth"
	"civicledger/core/block"
	"civicledger/core/errs"
	"civicledger/core/events"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// EventView is an event with its payload rendered as JSON.
type EventView struct {
	TxID        string          `json:"txId"`
	BlockNumber uint64          `json:"blockNumber"`
	Contract    string          `json:"contract"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func viewEvent(e events.Event) EventView {
	v := EventView{
		TxID:        e.TxID,
		BlockNumber: e.BlockNum,
		Contract:    e.Contract,
		Name:        e.Name,
		Timestamp:   e.Timestamp,
	}
	if json.Valid(e.Payload) {
		v.Payload = e.Payload
	} else if len(e.Payload) > 0 {
		v.Payload, _ = json.Marshal(string(e.Payload))
	}
	return v
}

func pageSize(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errs.Newf(errs.CodeInvalidArgument, "limit must be a positive integer, got %q", raw)
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n, nil
}

// handleListBlocks returns the newest blocks first.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	limit, err := pageSize(r)
	if err != nil {
		writeError(w, err)
		return
	}
	blocks, err := s.node.Journal().ListRecent(limit)
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "list blocks", err))
		return
	}
	if blocks == nil {
		blocks = []*block.Block{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"height": s.node.Journal().Height(),
		"blocks": blocks,
	})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	n, err := strconv.ParseUint(r.PathValue("number"), 10, 64)
	if err != nil {
		writeError(w, errs.Newf(errs.CodeInvalidArgument, "invalid block number %q", r.PathValue("number")))
		return
	}
	blk, err := s.node.Journal().Get(n)
	if errors.Is(err, block.ErrBlockNotFound) {
		writeError(w, errs.Newf(errs.CodeNotFound, "block %d does not exist", n))
		return
	}
	if err != nil {
		writeError(w, errs.Wrap(errs.CodeInternal, "load block", err))
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

// handleEvents returns buffered events, either the most recent ones or
// those committed after ?since=<block>.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	limit, err := pageSize(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var evts []events.Event
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, errs.Newf(errs.CodeInvalidArgument, "invalid since %q", raw))
			return
		}
		evts = s.node.Events().Since(since)
		if len(evts) > limit {
			evts = evts[:limit]
		}
	} else {
		evts = s.node.Events().Recent(limit)
	}
	if name := r.URL.Query().Get("contract"); name != "" {
		filtered := evts[:0:0]
		for _, e := range evts {
			if e.Contract == name {
				filtered = append(filtered, e)
			}
		}
		evts = filtered
	}
	out := make([]EventView, 0, len(evts))
	for _, e := range evts {
		out = append(out, viewEvent(e))
	}
	writeJSON(w, http.StatusOK, out)
}
