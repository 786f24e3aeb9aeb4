package risk

import (
	"fmt"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// metrics is mood, stress, energy; zero means unreported.
func testEntry(ago time.Duration, content string, metrics ...int) wellbeing.JournalEntry {
	e := wellbeing.JournalEntry{
		ID:        fmt.Sprintf("e-%d", int64(ago/time.Minute)),
		UserID:    "user-1",
		Content:   content,
		Timestamp: testNow.Add(-ago),
	}
	ptr := func(i int) *int {
		if i >= len(metrics) || metrics[i] == 0 {
			return nil
		}
		return wellbeing.IntPtr(metrics[i])
	}
	e.Mood, e.Stress, e.Energy = ptr(0), ptr(1), ptr(2)
	return e
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func testDelivery(ago time.Duration, completed bool, helpfulness int) wellbeing.Delivery {
	d := wellbeing.Delivery{
		ID:               fmt.Sprintf("d-%d", int64(ago/time.Minute)),
		UserID:           "user-1",
		InterventionType: "breathing_exercise",
		DeliveredAt:      testNow.Add(-ago),
		WasCompleted:     completed,
	}
	if helpfulness > 0 {
		d.PerceivedHelpfulness = wellbeing.IntPtr(helpfulness)
	}
	return d
}
