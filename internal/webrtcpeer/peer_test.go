package webrtcpeer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/parlorvc/parlor/internal/peerlink"
	"github.com/parlorvc/parlor/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOfferAnswerBetweenTwoPeers(t *testing.T) {
	api := NewAPI(quietLogger())

	offerer, err := NewPeer(api, nil, peerlink.Callbacks{})
	if err != nil {
		t.Fatalf("NewPeer offerer: %v", err)
	}
	defer offerer.Close()

	answerer, err := NewPeer(api, nil, peerlink.Callbacks{})
	if err != nil {
		t.Fatalf("NewPeer answerer: %v", err)
	}
	defer answerer.Close()

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != "offer" || offer.SDP == "" {
		t.Fatalf("unexpected offer %+v", offer)
	}

	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription(offer): %v", err)
	}
	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if answer.Type != "answer" || answer.SDP == "" {
		t.Fatalf("unexpected answer %+v", answer)
	}

	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription(answer): %v", err)
	}
}

func TestAnswerWithoutRemoteOfferFails(t *testing.T) {
	api := NewAPI(quietLogger())
	peer, err := NewPeer(api, nil, peerlink.Callbacks{})
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	defer peer.Close()

	if _, err := peer.CreateAnswer(); err == nil {
		t.Fatalf("CreateAnswer without a remote offer must fail")
	}
}

func TestBadRemoteDescriptionType(t *testing.T) {
	api := NewAPI(quietLogger())
	peer, err := NewPeer(api, nil, peerlink.Callbacks{})
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	defer peer.Close()

	err = peer.SetRemoteDescription(protocol.Description{Type: "rollback", SDP: "v=0"})
	if err == nil {
		t.Fatalf("unsupported description type accepted")
	}
}
