package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleIntervals(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, expr := range []string{"30m", "@every 30m"} {
		s, err := parseSchedule(expr, "")
		if err != nil {
			t.Fatalf("parseSchedule(%q) error: %v", expr, err)
		}
		next, _ := s.Next(base)
		if !next.Equal(base.Add(30 * time.Minute)) {
			t.Fatalf("%q: expected +30m, got %v", expr, next)
		}
	}
}

func TestParseScheduleRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := []struct{ expr, tz string }{
		{"", ""},
		{"-5m", ""},
		{"@every nope", ""},
		{"* * * *", ""},
		{"61 * * * *", ""},
		{"*/0 * * * *", ""},
		{"5-1 * * * *", ""},
		{"0 9 * * *", "Mars/Olympus"},
	}
	for _, tc := range cases {
		if _, err := parseSchedule(tc.expr, tc.tz); err == nil {
			t.Fatalf("expected error for %q tz=%q", tc.expr, tc.tz)
		}
	}
}

func TestCronNextDaily(t *testing.T) {
	t.Parallel()

	s, err := parseSchedule("0 9 * * *", "UTC")
	if err != nil {
		t.Fatalf("parseSchedule error: %v", err)
	}

	before := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	next, err := s.Next(before)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	// Exactly at fire time moves to the following day.
	next, _ = s.Next(next)
	if want := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestCronNextRespectsTimezone(t *testing.T) {
	t.Parallel()

	s, err := parseSchedule("0 9 * * *", "Asia/Ho_Chi_Minh")
	if err != nil {
		t.Fatalf("parseSchedule error: %v", err)
	}
	next, err := s.Next(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	// 09:00 ICT is 02:00 UTC.
	if want := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next.UTC())
	}
}

func TestCronRangesStepsAndWeekdays(t *testing.T) {
	t.Parallel()

	s, err := parseSchedule("15,45 8-10/2 * * 1-5", "")
	if err != nil {
		t.Fatalf("parseSchedule error: %v", err)
	}
	// 2024-03-02 is a Saturday; next weekday slot is Monday 08:15.
	next, err := s.Next(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	next, _ = s.Next(time.Date(2024, 3, 4, 8, 50, 0, 0, time.UTC))
	if want := time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestCronDescriptors(t *testing.T) {
	t.Parallel()

	s, err := parseSchedule("@Weekly", "")
	if err != nil {
		t.Fatalf("parseSchedule error: %v", err)
	}
	next, _ := s.Next(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected Sunday midnight %v, got %v", want, next)
	}

	s, err = parseSchedule("0 0 * * SUN", "")
	if err != nil {
		t.Fatalf("parseSchedule error: %v", err)
	}
	if again, _ := s.Next(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); !again.Equal(next) {
		t.Fatalf("expected SUN to match @weekly, got %v", again)
	}
}

func TestCronInlineTimezoneWins(t *testing.T) {
	t.Parallel()

	s, err := parseSchedule("CRON_TZ=Asia/Tokyo 0 9 * * *", "UTC")
	if err != nil {
		t.Fatalf("parseSchedule error: %v", err)
	}
	next, _ := s.Next(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC))
	// 09:00 JST is 00:00 UTC, so the next fire is the following day.
	if want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next.UTC())
	}
}

func TestCronLeapDayBeyondOneYear(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sched, err := compile(Config{Schedule: "0 0 29 2 *"}, from)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	next, err := sched.Next(from)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestCompileRejectsImpossibleDate(t *testing.T) {
	t.Parallel()

	if _, err := compile(Config{Schedule: "0 9 31 2 *"}, time.Now()); err == nil {
		t.Fatalf("expected February 31st to be rejected")
	}
}
