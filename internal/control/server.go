// SPDX-License-Identifier: MIT
package control

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/chabad360/go-osc/osc"

	"stemmix/internal/config"
	"stemmix/internal/engine"
	applog "stemmix/internal/log"
	"stemmix/internal/transport"
)

// Server owns the OSC listener and translates incoming messages into
// engine operations. All handlers run on the server's dispatch goroutine;
// they may block on file I/O (load, cue) but never touch the render path
// directly, only the engine's locked control surface.
type Server struct {
	engine *engine.Engine
	addr   string

	// statusSink receives /get_status snapshots when a hub is configured.
	statusSink transport.Transport
	reply      *osc.Client

	oscServer *osc.Server
	conn      net.PacketConn

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer wires a control server for the engine. statusSink may be nil.
// If cfg.ReplyAddress is set, /get_status and /test_tone also answer over
// OSC to that address.
func NewServer(cfg *config.ControlConfig, eng *engine.Engine, statusSink transport.Transport) (*Server, error) {
	s := &Server{
		engine:     eng,
		addr:       cfg.ListenAddress,
		statusSink: statusSink,
	}

	if cfg.ReplyAddress != "" {
		host, portStr, err := net.SplitHostPort(cfg.ReplyAddress)
		if err != nil {
			return nil, fmt.Errorf("control: invalid reply address %q: %w", cfg.ReplyAddress, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("control: invalid reply port %q: %w", portStr, err)
		}
		s.reply = osc.NewClient(host, port)
	}

	d := osc.NewStandardDispatcher()
	for addr, h := range s.routes() {
		if err := d.AddMsgHandler(addr, h); err != nil {
			return nil, fmt.Errorf("control: registering %s: %w", addr, err)
		}
	}
	s.oscServer = &osc.Server{Addr: cfg.ListenAddress, Dispatcher: d}
	return s, nil
}

// routes maps every protocol address to its handler. Unlisted addresses
// are silently dropped by the dispatcher.
func (s *Server) routes() map[string]func(*osc.Message) {
	return map[string]func(*osc.Message){
		AddressReset:           s.handleReset,
		AddressLoadBuffer:      s.handleLoadBuffer,
		AddressPlayStem:        s.handlePlayStem,
		AddressStopStem:        s.handleStopStem,
		AddressStemVolume:      s.handleStemVolume,
		AddressCrossfadeLevels: s.handleCrossfadeLevels,
		AddressDeckLevels:      s.handleDeckLevels,
		AddressDeckEQ:          s.handleDeckEQ,
		AddressDeckEQAll:       s.handleDeckEQAll,
		AddressCue:             s.handleCue,
		AddressStartGroup:      s.handleStartGroup,
		AddressSetTempo:        s.handleSetTempo,
		AddressGetStatus:       s.handleGetStatus,
		AddressMixerCleanup:    s.handleMixerCleanup,
		AddressTestTone:        s.handleTestTone,
	}
}

// Start binds the UDP socket and serves until Stop. The bind itself is
// synchronous so a taken port fails startup instead of surfacing later.
func (s *Server) Start() error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.addr, err)
	}
	s.conn = conn

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.oscServer.Serve(conn); err != nil {
			// Closing the socket during shutdown surfaces here.
			applog.Debugf("Control: serve loop ended: %v", err)
		}
	}()

	applog.Infof("Control: OSC server listening on %s", s.addr)
	return nil
}

// Stop closes the listener and waits for the dispatch goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
		s.wg.Wait()
		applog.Infof("Control: OSC server stopped")
	})
}

// drop logs a protocol error and ignores the message.
func drop(err *ProtocolError) {
	applog.Warnf("Control: %v", err)
}

func (s *Server) handleReset(msg *osc.Message) {
	s.engine.Reset()
}

func (s *Server) handleLoadBuffer(msg *osc.Message) {
	id, err := intArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressLoadBuffer, "%v", err))
		return
	}
	path, err := stringArg(msg, 1)
	if err != nil {
		drop(protoErrf(AddressLoadBuffer, "%v", err))
		return
	}
	name := path
	if n, err := stringArg(msg, 2); err == nil {
		name = n
	}
	if err := s.engine.LoadBuffer(id, path, name); err != nil {
		applog.Errorf("Control: %s: %v", AddressLoadBuffer, err)
	}
}

// playStemCmd carries the decoded /play_stem arguments. Only the buffer id
// is mandatory; the rest default to a plain looping playback.
type playStemCmd struct {
	id       int
	rate     float64
	volume   float64
	loop     bool
	startPos float64
}

func parsePlayStem(msg *osc.Message) (playStemCmd, *ProtocolError) {
	cmd := playStemCmd{rate: 1.0, volume: 0.8, loop: true}

	id, err := intArg(msg, 0)
	if err != nil {
		return cmd, protoErrf(AddressPlayStem, "%v", err)
	}
	cmd.id = id

	if len(msg.Arguments) > 1 {
		if cmd.rate, err = floatArg(msg, 1); err != nil {
			return cmd, protoErrf(AddressPlayStem, "%v", err)
		}
	}
	if len(msg.Arguments) > 2 {
		if cmd.volume, err = floatArg(msg, 2); err != nil {
			return cmd, protoErrf(AddressPlayStem, "%v", err)
		}
	}
	if len(msg.Arguments) > 3 {
		if cmd.loop, err = boolArg(msg, 3); err != nil {
			return cmd, protoErrf(AddressPlayStem, "%v", err)
		}
	}
	if len(msg.Arguments) > 4 {
		if cmd.startPos, err = floatArg(msg, 4); err != nil {
			return cmd, protoErrf(AddressPlayStem, "%v", err)
		}
	}
	return cmd, nil
}

func (s *Server) handlePlayStem(msg *osc.Message) {
	cmd, perr := parsePlayStem(msg)
	if perr != nil {
		drop(perr)
		return
	}
	if err := s.engine.PlayStem(cmd.id, cmd.rate, cmd.volume, cmd.loop, cmd.startPos); err != nil {
		applog.Errorf("Control: %s: %v", AddressPlayStem, err)
	}
}

func (s *Server) handleStopStem(msg *osc.Message) {
	id, err := intArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressStopStem, "%v", err))
		return
	}
	s.engine.StopStem(id)
}

func (s *Server) handleStemVolume(msg *osc.Message) {
	id, err := intArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressStemVolume, "%v", err))
		return
	}
	vol, err := floatArg(msg, 1)
	if err != nil {
		drop(protoErrf(AddressStemVolume, "%v", err))
		return
	}
	if err := s.engine.SetStemVolume(id, vol); err != nil {
		applog.Warnf("Control: %s: %v", AddressStemVolume, err)
	}
}

// handleCrossfadeLevels accepts two to four bus levels (A, B[, C[, D]]).
func (s *Server) handleCrossfadeLevels(msg *osc.Message) {
	n := len(msg.Arguments)
	if n < 2 {
		drop(protoErrf(AddressCrossfadeLevels, "want 2-4 levels, got %d", n))
		return
	}
	if n > engine.NumDecks {
		n = engine.NumDecks
	}
	levels := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := floatArg(msg, i)
		if err != nil {
			drop(protoErrf(AddressCrossfadeLevels, "%v", err))
			return
		}
		levels[i] = v
	}
	s.engine.SetBusLevels(levels...)
}

// handleDeckLevels requires a level for every deck.
func (s *Server) handleDeckLevels(msg *osc.Message) {
	levels := make([]float64, engine.NumDecks)
	for i := range levels {
		v, err := floatArg(msg, i)
		if err != nil {
			drop(protoErrf(AddressDeckLevels, "%v", err))
			return
		}
		levels[i] = v
	}
	s.engine.SetBusLevels(levels...)
}

func (s *Server) handleDeckEQ(msg *osc.Message) {
	deck, err := stringArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressDeckEQ, "%v", err))
		return
	}
	band, err := stringArg(msg, 1)
	if err != nil {
		drop(protoErrf(AddressDeckEQ, "%v", err))
		return
	}
	value, err := intArg(msg, 2)
	if err != nil {
		drop(protoErrf(AddressDeckEQ, "%v", err))
		return
	}
	if err := s.engine.SetDeckEQ(deck, band, eqGain(value)); err != nil {
		drop(protoErrf(AddressDeckEQ, "%v", err))
	}
}

func (s *Server) handleDeckEQAll(msg *osc.Message) {
	deck, err := stringArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressDeckEQAll, "%v", err))
		return
	}
	var values [3]int
	for i := range values {
		v, err := intArg(msg, i+1)
		if err != nil {
			drop(protoErrf(AddressDeckEQAll, "%v", err))
			return
		}
		values[i] = v
	}
	if err := s.engine.SetDeckEQAll(deck, eqGain(values[0]), eqGain(values[1]), eqGain(values[2])); err != nil {
		drop(protoErrf(AddressDeckEQAll, "%v", err))
	}
}

func (s *Server) handleCue(msg *osc.Message) {
	deck, err := stringArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressCue, "%v", err))
		return
	}
	path, err := stringArg(msg, 1)
	if err != nil {
		drop(protoErrf(AddressCue, "%v", err))
		return
	}
	position := 0.0
	if len(msg.Arguments) > 2 {
		if position, err = floatArg(msg, 2); err != nil {
			drop(protoErrf(AddressCue, "%v", err))
			return
		}
	}
	if err := s.engine.Cue(deck, path, position); err != nil {
		applog.Errorf("Control: %s: %v", AddressCue, err)
	}
}

func (s *Server) handleStartGroup(msg *osc.Message) {
	offset, err := floatArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressStartGroup, "%v", err))
		return
	}
	deck, err := stringArg(msg, 1)
	if err != nil {
		drop(protoErrf(AddressStartGroup, "%v", err))
		return
	}
	if err := s.engine.StartGroupAfter(offset, deck); err != nil {
		drop(protoErrf(AddressStartGroup, "%v", err))
	}
}

func (s *Server) handleSetTempo(msg *osc.Message) {
	bpm, err := floatArg(msg, 0)
	if err != nil {
		drop(protoErrf(AddressSetTempo, "%v", err))
		return
	}
	if err := s.engine.SetTempo(bpm); err != nil {
		drop(protoErrf(AddressSetTempo, "%v", err))
	}
}

func (s *Server) handleGetStatus(msg *osc.Message) {
	snap := s.engine.Snapshot()
	applog.Infof("Control: status: %.0fHz, %.1f BPM (beat %.2f), %d buffers, %d/%d players active, master %.2f",
		snap.SampleRate, snap.BPM, snap.BeatPosition,
		snap.BufferCount, snap.ActiveCount, snap.PlayerCount, snap.MasterVolume)

	if s.statusSink != nil {
		frame := map[string]interface{}{"type": "status", "status": snap}
		// A requested status frame must not be swallowed by the meter
		// rate limiter.
		var err error
		if direct, ok := s.statusSink.(transport.PrioritySender); ok {
			err = direct.SendNow(frame)
		} else {
			err = s.statusSink.Send(frame)
		}
		if err != nil {
			applog.Warnf("Control: error pushing status frame: %v", err)
		}
	}

	if s.reply != nil {
		reply := osc.NewMessage(AddressStatus)
		reply.Append(float32(snap.SampleRate))
		reply.Append(float32(snap.BPM))
		reply.Append(int32(snap.BufferCount))
		reply.Append(int32(snap.PlayerCount))
		reply.Append(int32(snap.ActiveCount))
		reply.Append(float32(snap.MasterVolume))
		for i := 0; i < engine.NumDecks; i++ {
			reply.Append(float32(snap.Levels[engine.DeckName(i)]))
		}
		if err := s.reply.Send(reply); err != nil {
			applog.Warnf("Control: error sending status reply: %v", err)
		}
	}
}

func (s *Server) handleMixerCleanup(msg *osc.Message) {
	s.engine.Cleanup()
}

// handleTestTone is a connectivity check. It acknowledges without touching
// playback state; the optional argument is echoed in the log and reply.
func (s *Server) handleTestTone(msg *osc.Message) {
	freq := 440.0
	if len(msg.Arguments) > 0 {
		if f, err := floatArg(msg, 0); err == nil {
			freq = f
		}
	}
	applog.Infof("Control: test tone request acknowledged (%.1f Hz)", freq)

	if s.reply != nil {
		ack := osc.NewMessage(AddressTestTone)
		ack.Append(float32(freq))
		if err := s.reply.Send(ack); err != nil {
			applog.Warnf("Control: error sending test tone ack: %v", err)
		}
	}
}
