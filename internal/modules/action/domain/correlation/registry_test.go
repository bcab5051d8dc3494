package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newPending(id string, key Key, ttl time.Duration, base time.Time) *Pending {
	return &Pending{
		CorrelationId:  id,
		Key:            key,
		OwnerSessionId: "session-1",
		RegisteredAt:   base,
		ExpiresAt:      base.Add(ttl),
	}
}

func TestRegisterConflictSameKey(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(5 * time.Second)
	r.now = func() time.Time { return base }

	key := Key{EntiteType: "prospect", EntiteId: "42", ActionType: "ENVOYER_EMAIL"}

	if _, ok := r.Register(newPending("corr-1", key, 60*time.Second, base)); !ok {
		t.Fatal("first register should succeed")
	}
	conflict, ok := r.Register(newPending("corr-2", key, 60*time.Second, base))
	if ok {
		t.Fatal("second register on same key should be rejected")
	}
	if conflict == nil || conflict.CorrelationId != "corr-1" {
		t.Fatalf("conflict should point at the live entry, got %+v", conflict)
	}

	// 不同实体同类型动作互不影响
	other := Key{EntiteType: "prospect", EntiteId: "43", ActionType: "ENVOYER_EMAIL"}
	if _, ok := r.Register(newPending("corr-3", other, 60*time.Second, base)); !ok {
		t.Fatal("different entity must not conflict")
	}
}

func TestRegisterDuplicateCorrelationId(t *testing.T) {
	base := time.Now()
	r := NewRegistry(5 * time.Second)

	keyA := Key{EntiteType: "candidat", EntiteId: "7", ActionType: "CONVERTIR_CANDIDAT"}
	keyB := Key{EntiteType: "candidat", EntiteId: "8", ActionType: "CONVERTIR_CANDIDAT"}

	if _, ok := r.Register(newPending("dup", keyA, time.Minute, base)); !ok {
		t.Fatal("first register should succeed")
	}
	if _, ok := r.Register(newPending("dup", keyB, time.Minute, base)); ok {
		t.Fatal("reusing a correlation id must be rejected")
	}
}

func TestRegisterEvictsExpiredInPlace(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	r := NewRegistry(5 * time.Second)
	r.now = func() time.Time { return current }

	key := Key{EntiteType: "formateur", EntiteId: "9", ActionType: "RELANCER_PROSPECT"}
	if _, ok := r.Register(newPending("corr-old", key, 30*time.Second, base)); !ok {
		t.Fatal("register should succeed")
	}

	// 过期但尚未被清扫，新的登记应就地逐出旧条目
	current = base.Add(31 * time.Second)
	if _, ok := r.Register(newPending("corr-new", key, 30*time.Second, current)); !ok {
		t.Fatal("register must succeed once the previous entry is expired")
	}
	if r.Len() != 1 {
		t.Fatalf("expired entry should be gone, len=%d", r.Len())
	}
	if _, ok := r.Resolve("corr-old"); ok {
		t.Fatal("evicted entry must not resolve")
	}
}

func TestResolveIsTerminal(t *testing.T) {
	base := time.Now()
	r := NewRegistry(5 * time.Second)

	key := Key{EntiteType: "session", EntiteId: "12", ActionType: "GENERER_DEVIS"}
	r.Register(newPending("corr-r", key, time.Minute, base))

	p, ok := r.Resolve("corr-r")
	if !ok || p == nil || p.CorrelationId != "corr-r" {
		t.Fatalf("resolve should return the pending entry, got %+v ok=%v", p, ok)
	}
	if _, ok := r.Resolve("corr-r"); ok {
		t.Fatal("second resolve must fail")
	}
	// 结案后键释放，可重新登记
	if _, ok := r.Register(newPending("corr-r2", key, time.Minute, base)); !ok {
		t.Fatal("key should be free after resolve")
	}
}

func TestResolveExpiredFails(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	r := NewRegistry(5 * time.Second)
	r.now = func() time.Time { return current }

	key := Key{EntiteType: "prospect", EntiteId: "1", ActionType: "REFUSER"}
	r.Register(newPending("corr-x", key, 10*time.Second, base))

	current = base.Add(11 * time.Second)
	if _, ok := r.Resolve("corr-x"); ok {
		t.Fatal("resolving an expired entry must fail")
	}
	if r.Len() != 0 {
		t.Fatal("expired entry should be removed on resolve attempt")
	}
}

func TestRemaining(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := newPending("corr-t", Key{}, 60*time.Second, base)

	if got := p.Remaining(base.Add(5 * time.Second)); got != 55*time.Second {
		t.Fatalf("remaining = %v, want 55s", got)
	}
	if got := p.Remaining(base.Add(61 * time.Second)); got != 0 {
		t.Fatalf("remaining after expiry = %v, want 0", got)
	}
}

func TestSweepEvictsSilently(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	r := NewRegistry(5 * time.Second)
	r.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		key := Key{EntiteType: "prospect", EntiteId: fmt.Sprintf("%d", i), ActionType: "ENVOYER_EMAIL"}
		r.Register(newPending(fmt.Sprintf("corr-%d", i), key, 10*time.Second, base))
	}
	key := Key{EntiteType: "prospect", EntiteId: "99", ActionType: "ENVOYER_EMAIL"}
	r.Register(newPending("corr-live", key, 10*time.Minute, base))

	current = base.Add(30 * time.Second)
	r.sweep()

	if r.Len() != 1 {
		t.Fatalf("sweep should keep only the live entry, len=%d", r.Len())
	}
	if _, ok := r.Resolve("corr-live"); !ok {
		t.Fatal("live entry must survive the sweep")
	}
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	base := time.Now()
	r := NewRegistry(5 * time.Second)

	key := Key{EntiteType: "candidat", EntiteId: "77", ActionType: "CONVERTIR_CANDIDAT"}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("corr-%d", i)
			if _, ok := r.Register(newPending(id, key, time.Minute, base)); ok {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one register must win, got %d", count)
	}
	if r.Len() != 1 {
		t.Fatalf("registry should hold one entry, len=%d", r.Len())
	}
}
