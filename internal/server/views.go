package server

import (
	"time"

	"github.com/rickgao/airvpn-bridge/internal/coordinator"
	"github.com/rickgao/airvpn-bridge/internal/fetcher"
	"github.com/rickgao/airvpn-bridge/internal/model"
)

type statusView struct {
	State               string     `json:"state"`
	LastResult          string     `json:"last_result"`
	LastError           string     `json:"last_error,omitempty"`
	ErrorKind           string     `json:"error_kind,omitempty"`
	LastAttempt         *time.Time `json:"last_attempt,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

func statusViewOf(st coordinator.Status) statusView {
	v := statusView{
		State:               st.State.String(),
		LastResult:          st.LastResult.String(),
		LastAttempt:         timePtr(st.LastAttempt),
		LastSuccess:         timePtr(st.LastSuccess),
		ConsecutiveFailures: st.ConsecutiveFailures,
	}
	if st.LastErr != nil {
		v.LastError = st.LastErr.Error()
		if kind, ok := fetcher.KindOf(st.LastErr); ok {
			v.ErrorKind = kind.String()
		}
	}
	return v
}

type snapshotView struct {
	User      model.Record   `json:"user"`
	Devices   []model.Record `json:"devices"`
	Sessions  []model.Record `json:"sessions"`
	FetchedAt time.Time      `json:"fetched_at"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
