// Package rtc carries connector traffic over WebRTC data channels.
package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Peer wraps a PeerConnection for the offer/answer exchange.
type Peer struct {
	pc     *webrtc.PeerConnection
	sid    string
	cancel context.CancelFunc

	onDataChannel func(*webrtc.DataChannel)
	onClosed      func()
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewPeer(cfg webrtc.Configuration, sid string) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Peer{pc: pc, sid: sid}, nil
}

// Start installs the state callbacks and ties the peer's lifetime to ctx.
func (p *Peer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", p.sid).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
			if p.onClosed != nil {
				p.onClosed()
			}
		}
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("module", "rtc").Str("sid", p.sid).Str("label", dc.Label()).Msg("OnDataChannel received")
		if p.onDataChannel != nil {
			p.onDataChannel(dc)
		}
	})

	go func() {
		<-ctx.Done()
		p.Close()
	}()
	return nil
}

// Answer applies a remote offer and returns the local answer once ICE
// gathering has finished.
func (p *Peer) Answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return p.pc.LocalDescription(), nil
}

// CreateAndSetOffer is the offering side of Answer.
func (p *Peer) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return p.pc.LocalDescription(), nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *Peer) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	return p.pc.CreateDataChannel(label, nil)
}

func (p *Peer) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", p.sid).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("sid", p.sid).Msg("closed")
	}
}

// OnDataChannel sets the callback for channels opened by the remote side.
func (p *Peer) OnDataChannel(fn func(*webrtc.DataChannel)) { p.onDataChannel = fn }

// OnClosed sets a callback for when the connection fails or closes.
func (p *Peer) OnClosed(fn func()) { p.onClosed = fn }
