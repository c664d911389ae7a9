package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/media"
)

// ErrNoAgent is returned when no browser has offered to capture for the studio.
var ErrNoAgent = errors.New("no capture agent connected")

const (
	captureUser    = "user"
	captureDisplay = "display"

	defaultCaptureTimeout = 2 * time.Minute
)

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// ParseICEServers turns configured URLs into ICE servers, falling back to a public STUN server.
func ParseICEServers(urls []string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}

// captureRequestPayload asks the agent to run getUserMedia or getDisplayMedia.
type captureRequestPayload struct {
	RequestID   string            `json:"request_id"`
	Kind        string            `json:"kind"`
	Constraints media.Constraints `json:"constraints"`
}

type captureResult struct {
	stream *media.Stream
	err    error
}

// captureRequest is one pending or live capture. The agent answers with an offer carrying
// the captured tracks over a dedicated peer connection.
type captureRequest struct {
	id     string
	kind   string
	result chan captureResult

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	want     int
	tracks   []*media.Track
	released int
	done     bool
}

// Ingest receives browser capture over WebRTC and exposes it as media.Devices. A single
// browser tab acts as the capture agent.
type Ingest struct {
	log     *zap.Logger
	cfg     webrtc.Configuration
	timeout time.Duration

	mu          sync.Mutex
	agent       string
	displayable bool
	send        func(event string, payload interface{})
	requests    map[string]*captureRequest
}

// NewIngest creates an ingest with the given ICE (STUN/TURN) configuration.
func NewIngest(log *zap.Logger, iceServers []webrtc.ICEServer, timeout time.Duration) *Ingest {
	if len(iceServers) == 0 {
		iceServers = defaultICE
	}
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	return &Ingest{
		log:      log.Named("ingest"),
		cfg:      webrtc.Configuration{ICEServers: iceServers},
		timeout:  timeout,
		requests: make(map[string]*captureRequest),
	}
}

// Attach makes clientID the capture agent. display reports whether it can share its screen.
func (i *Ingest) Attach(clientID string, display bool, send func(event string, payload interface{})) {
	i.mu.Lock()
	prev := i.agent
	i.agent = clientID
	i.displayable = display
	i.send = send
	i.mu.Unlock()
	if prev != "" && prev != clientID {
		i.log.Info("capture agent replaced", zap.String("previous", prev), zap.String("client_id", clientID))
	} else {
		i.log.Info("capture agent attached", zap.String("client_id", clientID), zap.Bool("display", display))
	}
}

// Detach forgets clientID if it is the agent and fails its pending requests.
func (i *Ingest) Detach(clientID string) {
	i.mu.Lock()
	if i.agent != clientID {
		i.mu.Unlock()
		return
	}
	i.agent = ""
	i.displayable = false
	i.send = nil
	var pending []*captureRequest
	for _, r := range i.requests {
		pending = append(pending, r)
	}
	i.mu.Unlock()

	for _, r := range pending {
		i.fail(r, fmt.Errorf("%w: agent disconnected", media.ErrDeviceUnavailable))
	}
	i.log.Info("capture agent detached", zap.String("client_id", clientID))
}

// UserMedia asks the agent for camera and/or microphone.
func (i *Ingest) UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	return i.request(ctx, captureUser, c)
}

// DisplayMedia asks the agent for a screen capture.
func (i *Ingest) DisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if !i.DisplaySupported() {
		return nil, media.ErrUnsupported
	}
	return i.request(ctx, captureDisplay, c)
}

// DisplaySupported reports whether the agent can share its screen.
func (i *Ingest) DisplaySupported() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.agent != "" && i.displayable
}

func (i *Ingest) request(ctx context.Context, kind string, c media.Constraints) (*media.Stream, error) {
	i.mu.Lock()
	send := i.send
	if i.agent == "" || send == nil {
		i.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", media.ErrDeviceUnavailable, ErrNoAgent)
	}
	r := &captureRequest{id: uuid.NewString(), kind: kind, result: make(chan captureResult, 1)}
	i.requests[r.id] = r
	i.mu.Unlock()

	i.log.Debug("capture requested", zap.String("request_id", r.id), zap.String("kind", kind))
	send("capture_request", captureRequestPayload{RequestID: r.id, Kind: kind, Constraints: c})

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	select {
	case res := <-r.result:
		return res.stream, res.err
	case <-ctx.Done():
		i.fail(r, ctx.Err())
		// A result may have raced the deadline; hand back nothing and release it.
		select {
		case res := <-r.result:
			if res.stream != nil {
				res.stream.Stop()
			}
		default:
		}
		return nil, ctx.Err()
	}
}

func (i *Ingest) lookup(requestID string) *captureRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.requests[requestID]
}

// Fail resolves a request with the agent's capture error.
func (i *Ingest) Fail(requestID string, err error) {
	r := i.lookup(requestID)
	if r == nil {
		return
	}
	i.fail(r, err)
}

func (i *Ingest) fail(r *captureRequest, err error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	pc := r.pc
	r.mu.Unlock()

	i.mu.Lock()
	delete(i.requests, r.id)
	i.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	r.result <- captureResult{err: err}
	i.log.Debug("capture failed", zap.String("request_id", r.id), zap.Error(err))
}

// HandleOffer answers the agent's offer for a request. tracks is the number of tracks the
// agent captured; the request resolves once all of them have arrived.
func (i *Ingest) HandleOffer(requestID string, tracks int, sdp webrtc.SessionDescription, sendToClient func(event string, payload interface{})) error {
	r := i.lookup(requestID)
	if r == nil {
		return fmt.Errorf("unknown capture request %q", requestID)
	}
	if tracks <= 0 {
		err := fmt.Errorf("%w: offer carries no tracks", media.ErrDeviceUnavailable)
		i.fail(r, err)
		return err
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(i.cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.done || r.pc != nil {
		r.mu.Unlock()
		_ = pc.Close()
		return fmt.Errorf("capture request %q already answered", requestID)
	}
	r.pc = pc
	r.want = tracks
	r.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, _ := json.Marshal(c.ToJSON())
		sendToClient("capture_ice", map[string]interface{}{"request_id": requestID, "candidate": json.RawMessage(b)})
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		i.addTrack(r, remote, sendToClient)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed {
			i.fail(r, fmt.Errorf("%w: peer connection failed", media.ErrDeviceUnavailable))
		}
	})

	if err := pc.SetRemoteDescription(sdp); err != nil {
		i.fail(r, err)
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		i.fail(r, err)
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		i.fail(r, err)
		return err
	}

	sendToClient("capture_answer", map[string]interface{}{
		"request_id": requestID,
		"type":       answer.Type.String(),
		"sdp":        answer.SDP,
	})
	return nil
}

// HandleICE adds a remote ICE candidate to a request's peer connection.
func (i *Ingest) HandleICE(requestID string, candidate webrtc.ICECandidateInit) error {
	r := i.lookup(requestID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	pc := r.pc
	r.mu.Unlock()
	if pc == nil {
		return nil
	}
	return pc.AddICECandidate(candidate)
}

func (i *Ingest) addTrack(r *captureRequest, remote *webrtc.TrackRemote, sendToClient func(event string, payload interface{})) {
	kind := media.KindAudio
	if remote.Kind() == webrtc.RTPCodecTypeVideo {
		kind = media.KindVideo
	}
	t := media.NewTrack(kind, remote.ID(), func() { i.releaseTrack(r, sendToClient) })

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.tracks = append(r.tracks, t)
	var stream *media.Stream
	if len(r.tracks) == r.want {
		r.done = true
		stream = media.NewStream(r.tracks...)
	}
	r.mu.Unlock()

	go readRemote(remote, t)
	if stream != nil {
		i.log.Info("capture ready", zap.String("request_id", r.id), zap.String("kind", r.kind), zap.String("stream_id", stream.ID()))
		r.result <- captureResult{stream: stream}
	}
}

// readRemote forwards packets until the agent stops sending, then ends the track.
func readRemote(remote *webrtc.TrackRemote, t *media.Track) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			t.End()
			return
		}
		t.WriteRTP(pkt)
	}
}

// releaseTrack closes the peer connection once every track of the request is released and
// tells the agent to stop its local capture.
func (i *Ingest) releaseTrack(r *captureRequest, sendToClient func(event string, payload interface{})) {
	r.mu.Lock()
	r.released++
	last := r.released == len(r.tracks)
	pc := r.pc
	r.mu.Unlock()
	if !last {
		return
	}

	i.mu.Lock()
	delete(i.requests, r.id)
	i.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	sendToClient("capture_stop", map[string]string{"request_id": r.id})
	i.log.Debug("capture released", zap.String("request_id", r.id))
}
