package consultation

// slot is one pending speaking turn.
type slot struct {
	persona  string
	rebuttal bool
}

// scheduler resolves the speaking order of one round. Every persona speaks
// once in base order; a mention moves a persona that has not spoken yet to
// the front, and gives one that has spoken an extra rebuttal up to the cap.
type scheduler struct {
	queue     []slot
	spoken    map[string]bool
	rebuttals map[string]int
	cap       int
}

func newScheduler(order []string, rebuttalCap int) *scheduler {
	s := &scheduler{
		queue:     make([]slot, 0, len(order)),
		spoken:    make(map[string]bool, len(order)),
		rebuttals: make(map[string]int, len(order)),
		cap:       rebuttalCap,
	}
	for _, id := range order {
		s.queue = append(s.queue, slot{persona: id})
	}
	return s
}

func (s *scheduler) next() (slot, bool) {
	if len(s.queue) == 0 {
		return slot{}, false
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.spoken[next.persona] = true
	return next, true
}

// mention schedules the personas named by from, in order of appearance,
// immediately ahead of everything still pending.
func (s *scheduler) mention(from string, targets []string) {
	var front []slot
	for _, p := range targets {
		if p == from {
			continue
		}
		if !s.spoken[p] {
			if i := s.pendingFirst(p); i >= 0 {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				front = append(front, slot{persona: p})
			}
			continue
		}
		if s.rebuttals[p] >= s.cap {
			continue
		}
		s.rebuttals[p]++
		front = append(front, slot{persona: p, rebuttal: true})
	}
	if len(front) == 0 {
		return
	}
	s.queue = append(front, s.queue...)
}

func (s *scheduler) pendingFirst(persona string) int {
	for i, sl := range s.queue {
		if sl.persona == persona && !sl.rebuttal {
			return i
		}
	}
	return -1
}
