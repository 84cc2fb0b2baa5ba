package orchestrator

import (
	"sync"
	"time"

	"github.com/devskill-org/ems/ctrl"
)

// RequestState is the outer loop's observable phase, published to MQTT and
// the HTTP UI in lock-step with the loop itself.
type RequestState string

const (
	RequestStateIdle             RequestState = ""
	RequestStateSent             RequestState = "request sent"
	RequestStateResponseReceived RequestState = "response received"
)

// sharedState holds everything the HTTP/MQTT surfaces read and the override
// API writes, guarded by a single RWMutex — the same pattern the teacher's
// MinerScheduler uses for its config/discoveredMiners/mpcDecisions fields.
type sharedState struct {
	mu sync.RWMutex

	requestState        RequestState
	lastRequestTime      time.Time
	lastResponseTime     time.Time
	nextRun              time.Time

	lastRequest  *ctrl.OptimizeRequest
	lastResponse *ctrl.OptimizeResponse

	lastControlData        ctrl.ControlDecision
	lastStartSolution      []int
	homeApplianceReleased  bool

	override *ctrl.Override
}

func (s *sharedState) setRequestSent(req ctrl.OptimizeRequest, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestState = RequestStateSent
	s.lastRequestTime = now
	reqCopy := req
	s.lastRequest = &reqCopy
}

func (s *sharedState) setResponseReceived(resp *ctrl.OptimizeResponse, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestState = RequestStateResponseReceived
	s.lastResponseTime = now
	s.lastResponse = resp
}

func (s *sharedState) setNextRun(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = t
}

func (s *sharedState) setInterpreted(dec ctrl.ControlDecision, startSolution []int, released bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastControlData = dec
	s.lastStartSolution = startSolution
	s.homeApplianceReleased = released
}

// Snapshot is the read-only view exposed to the HTTP API and MQTT publisher.
type Snapshot struct {
	RequestState      RequestState
	LastRequestTime   time.Time
	LastResponseTime  time.Time
	NextRun           time.Time
	LastRequest       *ctrl.OptimizeRequest
	LastResponse      *ctrl.OptimizeResponse
	LastControlData   ctrl.ControlDecision
	LastStartSolution []int
	HomeApplianceReleased bool
	Override          *ctrl.Override
}

func (s *sharedState) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		RequestState:          s.requestState,
		LastRequestTime:       s.lastRequestTime,
		LastResponseTime:      s.lastResponseTime,
		NextRun:               s.nextRun,
		LastRequest:           s.lastRequest,
		LastResponse:          s.lastResponse,
		LastControlData:       s.lastControlData,
		LastStartSolution:     s.lastStartSolution,
		HomeApplianceReleased: s.homeApplianceReleased,
		Override:              s.override,
	}
}

func (s *sharedState) setOverride(o *ctrl.Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = o
}

func (s *sharedState) getOverride() *ctrl.Override {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.override
}

func (s *sharedState) startSolution() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStartSolution
}
