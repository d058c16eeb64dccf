// Package control implements the ad hoc control plane (SPEC_FULL §4.10,
// grounded in the original TierEngineAdhoc/adhoc.cpp): a Unix domain socket
// accepting line-delimited JSON requests for oneshot ticks, status queries,
// and the pin/unpin/list-pins commands, serialized against the periodic
// tick loop through the same lock.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/engine"
	"github.com/autotier/autotier/internal/health"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/resolver"
	"github.com/autotier/autotier/pkg/types"
)

// Request is one ad hoc command sent over the socket.
type Request struct {
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

// Response is the JSON reply for every command.
type Response struct {
	OK    bool               `json:"ok"`
	Error string             `json:"error,omitempty"`
	Tier  string             `json:"tier,omitempty"`
	Tiers []types.TierStatus `json:"tiers,omitempty"`
	Pins  []string           `json:"pins,omitempty"`
}

// Server listens on a Unix domain socket and dispatches ad hoc commands.
type Server struct {
	socketPath string
	engine     *engine.Engine
	resolver   *resolver.Resolver
	pins       *pin.Store
	health     *health.Tracker
	log        *zap.Logger
	listener   net.Listener
}

// New creates a Server bound to socketPath (not yet listening).
func New(socketPath string, eng *engine.Engine, res *resolver.Resolver, pins *pin.Store, tracker *health.Tracker, log *zap.Logger) *Server {
	return &Server{socketPath: socketPath, engine: eng, resolver: res, pins: pins, health: tracker, log: log}
}

// ListenAndServe opens the socket and serves connections until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = ln
	os.Chmod(s.socketPath, 0o660)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("control: accept failed", zap.Error(err))
				continue
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(Response{OK: false, Error: "malformed request: " + err.Error()})
			continue
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.log.Warn("control: failed to write response", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Command {
	case "oneshot":
		return s.oneshot()
	case "status":
		return s.status()
	case "whichtier":
		return s.whichTier(req.Path)
	case "pin":
		return s.pin(req.Path, req.Tier)
	case "unpin":
		return s.unpin(req.Path)
	case "list-pins":
		return s.listPins()
	default:
		return Response{OK: false, Error: "unknown command: " + req.Command}
	}
}

func (s *Server) oneshot() Response {
	if !s.engine.TryLock() {
		return Response{OK: false, Error: "tick already in progress"}
	}
	defer s.engine.Unlock()
	if err := s.engine.TickLocked(context.Background()); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *Server) status() Response {
	s.engine.Lock()
	defer s.engine.Unlock()

	var statuses []types.TierStatus
	for _, t := range s.resolver.Tiers() {
		statuses = append(statuses, types.TierStatus{
			ID:             t.ID,
			Path:           t.Path,
			Watermark:      t.Watermark,
			CapacityBytes:  t.CapacityBytes,
			UsedBytes:      t.UsedBytes,
			WatermarkBytes: t.WatermarkBytes,
			UsageRatio:     t.UsageRatio(),
			Health:         s.health.State(t.ID).String(),
		})
	}
	return Response{OK: true, Tiers: statuses}
}

func (s *Server) whichTier(path string) Response {
	idx, _ := s.resolver.Resolve(path)
	if idx == resolver.NotFound {
		return Response{OK: false, Error: "not found"}
	}
	return Response{OK: true, Tier: s.resolver.Tiers()[idx].ID}
}

// pin marks path as pinned to the tier named by tierID (SPEC_FULL §3,
// §4.10's `pin <path> <tier>`), encoding that tier's index in the pin
// xattr so the Policy Engine never moves the file off it.
func (s *Server) pin(path, tierID string) Response {
	idx, backing := s.resolver.Resolve(path)
	if idx == resolver.NotFound {
		return Response{OK: false, Error: "not found"}
	}
	tierIdx := -1
	for i, t := range s.resolver.Tiers() {
		if t.ID == tierID {
			tierIdx = i
			break
		}
	}
	if tierIdx == -1 {
		return Response{OK: false, Error: "unknown tier: " + tierID}
	}
	if err := s.pins.Pin(backing, tierIdx); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *Server) unpin(path string) Response {
	idx, backing := s.resolver.Resolve(path)
	if idx == resolver.NotFound {
		return Response{OK: false, Error: "not found"}
	}
	if err := s.pins.Unpin(backing); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *Server) listPins() Response {
	var pins []string
	for _, t := range s.resolver.Tiers() {
		entries, err := t.Enumerate()
		if err != nil {
			continue
		}
		for _, e := range entries {
			if s.pins.IsPinned(t.BackingPath(e.LogicalPath)) {
				pins = append(pins, e.LogicalPath)
			}
		}
	}
	return Response{OK: true, Pins: pins}
}
