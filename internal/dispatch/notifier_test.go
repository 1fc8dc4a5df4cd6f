package dispatch

import (
	"testing"

	"github.com/example/roadside-dispatch/internal/models"
)

type recordingNotifier struct {
	reachable bool
	offers    int
	assigned  int
}

func (r *recordingNotifier) SendOffer(string, models.OfferNotice) bool {
	r.offers++
	return r.reachable
}
func (r *recordingNotifier) NotifyAssigned(string, string, string) { r.assigned++ }
func (r *recordingNotifier) NotifyNoDrivers(string, string)        {}
func (r *recordingNotifier) NotifyDispatchFailed(string, string)   {}

func TestFallbackNotifierUsesSecondaryWhenPrimaryUnreachable(t *testing.T) {
	primary := &recordingNotifier{reachable: false}
	secondary := &recordingNotifier{reachable: true}
	f := FallbackNotifier{Primary: primary, Secondary: secondary}

	if !f.SendOffer("d1", models.OfferNotice{}) {
		t.Fatal("expected offer to reach the secondary transport")
	}
	if primary.offers != 1 || secondary.offers != 1 {
		t.Fatalf("expected both transports tried, got primary=%d secondary=%d", primary.offers, secondary.offers)
	}

	primary.reachable = true
	if !f.SendOffer("d1", models.OfferNotice{}) {
		t.Fatal("expected offer to reach the primary transport")
	}
	if secondary.offers != 1 {
		t.Fatalf("secondary should not be tried when primary succeeds, got %d", secondary.offers)
	}
}

func TestFallbackNotifierFansOutCustomerEvents(t *testing.T) {
	primary := &recordingNotifier{}
	secondary := &recordingNotifier{}
	f := FallbackNotifier{Primary: primary, Secondary: secondary}
	f.NotifyAssigned("r1", "c1", "d1")
	if primary.assigned != 1 || secondary.assigned != 1 {
		t.Fatalf("expected both transports notified, got primary=%d secondary=%d", primary.assigned, secondary.assigned)
	}
}
