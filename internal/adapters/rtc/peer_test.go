package rtc

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func TestPeerAnswersAudioOffer(t *testing.T) {
	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("client pc: %v", err)
	}
	defer client.Close()
	if _, err := client.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	}); err != nil {
		t.Fatalf("client transceiver: %v", err)
	}
	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	gather := webrtc.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local: %v", err)
	}
	select {
	case <-gather:
	case <-time.After(5 * time.Second):
		t.Fatalf("client gathering timed out")
	}

	peer, err := NewPeer(webrtc.Configuration{}, "test")
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	var closed atomic.Int32
	peer.OnClosed(func() { closed.Add(1) })
	peer.Start(context.Background())

	sdp, err := peer.Answer(client.LocalDescription().SDP)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(sdp, "m=audio") {
		t.Fatalf("answer has no audio section:\n%s", sdp)
	}

	peer.Close()
	peer.Close()
	if got := closed.Load(); got != 1 {
		t.Fatalf("expected OnClosed once, got %d", got)
	}
}

func TestPeerRejectsEmptyOffer(t *testing.T) {
	peer, err := NewPeer(webrtc.Configuration{}, "test")
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer peer.Close()
	if _, err := peer.Answer(""); err == nil {
		t.Fatalf("expected error for empty offer")
	}
}
