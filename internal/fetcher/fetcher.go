package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/airvpn-bridge/internal/api"
	"github.com/rickgao/airvpn-bridge/internal/model"
)

// Endpoint names used in FetchError and logs.
const (
	EndpointUserInfo = "userinfo"
	EndpointDevices  = "devices"
)

// Source is the upstream API. *api.Client satisfies it.
type Source interface {
	GetUserInfo(ctx context.Context) (*api.UserInfoResponse, error)
	GetDevices(ctx context.Context) (*api.DevicesResponse, error)
}

// Fetcher builds one Snapshot per call from all upstream endpoints.
type Fetcher struct {
	src    Source
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Fetcher.
func New(src Source, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		src:    src,
		logger: logger,
		now:    time.Now,
	}
}

// Fetch runs one fetch cycle. On any failure it returns a *FetchError and a
// nil snapshot; the sibling request is cancelled.
func (f *Fetcher) Fetch(ctx context.Context) (*model.Snapshot, error) {
	start := f.now()

	var (
		info    *api.UserInfoResponse
		devices *api.DevicesResponse
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resp, err := f.src.GetUserInfo(gctx)
		if err != nil {
			return classify(EndpointUserInfo, err)
		}
		info = resp
		return nil
	})

	g.Go(func() error {
		resp, err := f.src.GetDevices(gctx)
		if err != nil {
			return classify(EndpointDevices, err)
		}
		devices = resp
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap, err := merge(info, devices)
	if err != nil {
		return nil, err
	}
	snap.FetchedAt = f.now()

	f.logger.Debug("fetched snapshot",
		"devices", len(snap.Devices),
		"sessions", len(snap.Sessions),
		"duration", snap.FetchedAt.Sub(start),
	)

	return snap, nil
}

// merge assembles the snapshot. The user object is required; missing or
// null lists become empty slices.
func merge(info *api.UserInfoResponse, devices *api.DevicesResponse) (*model.Snapshot, error) {
	if info == nil {
		return nil, &FetchError{Kind: KindParse, Endpoint: EndpointUserInfo, Err: errors.New("empty response")}
	}
	if devices == nil {
		return nil, &FetchError{Kind: KindParse, Endpoint: EndpointDevices, Err: errors.New("empty response")}
	}

	// AirVPN answers some errors with HTTP 200 and a body such as
	// {"result":"Not authorized."}; without a user object there is no account.
	if info.User == nil {
		return nil, &FetchError{Kind: KindParse, Endpoint: EndpointUserInfo, Err: errors.New("missing user object")}
	}

	sessions, err := records(EndpointUserInfo, "sessions", info.Sessions)
	if err != nil {
		return nil, err
	}
	devs, err := records(EndpointDevices, "devices", devices.Devices)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		User:     info.User,
		Devices:  devs,
		Sessions: sessions,
	}, nil
}

// records copies a decoded list, rejecting null entries.
func records(endpoint, field string, in []model.Record) ([]model.Record, error) {
	out := make([]model.Record, 0, len(in))
	for i, r := range in {
		if r == nil {
			return nil, &FetchError{
				Kind:     KindParse,
				Endpoint: endpoint,
				Err:      fmt.Errorf("%s[%d] is null", field, i),
			}
		}
		out = append(out, r)
	}
	return out, nil
}
