package consultation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/models"
)

type memoryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Consultation
	seq  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[uuid.UUID]models.Consultation)}
}

func (m *memoryStore) Create(ctx context.Context, cons models.Consultation) (models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cons.ID = uuid.New()
	cons.Code = "CON000001"
	cons.Status = models.ConsultationQueued
	cons.CreatedAt = time.Now()
	m.rows[cons.ID] = cons
	return cons, nil
}

func (m *memoryStore) Get(ctx context.Context, hospitalID, id uuid.UUID) (models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cons, ok := m.rows[id]
	if !ok || cons.HospitalID != hospitalID {
		return models.Consultation{}, apperrors.NotFound("consultation not found")
	}
	return cons, nil
}

func (m *memoryStore) ListQueue(ctx context.Context, hospitalID uuid.UUID) ([]models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Consultation
	for _, cons := range m.rows {
		if cons.HospitalID == hospitalID && cons.Status == models.ConsultationQueued && cons.PayReady {
			out = append(out, cons)
		}
	}
	return out, nil
}

func (m *memoryStore) ListClaimedBy(ctx context.Context, hospitalID, doctorID uuid.UUID) ([]models.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Consultation
	for _, cons := range m.rows {
		if cons.HospitalID == hospitalID && cons.Status == models.ConsultationClaimed &&
			cons.DoctorID != nil && *cons.DoctorID == doctorID {
			out = append(out, cons)
		}
	}
	return out, nil
}

func (m *memoryStore) ClaimQueued(ctx context.Context, hospitalID, id, doctorID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cons, ok := m.rows[id]
	if !ok || cons.HospitalID != hospitalID || cons.Status != models.ConsultationQueued || !cons.PayReady {
		return apperrors.Conflict("already taken or not in queue")
	}
	cons.Status = models.ConsultationClaimed
	cons.DoctorID = &doctorID
	cons.StartedAt = &at
	m.rows[id] = cons
	return nil
}

func (m *memoryStore) Decline(ctx context.Context, hospitalID, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cons, ok := m.rows[id]
	if !ok || cons.HospitalID != hospitalID ||
		(cons.Status != models.ConsultationQueued && cons.Status != models.ConsultationClaimed) {
		return apperrors.NotFound("consultation not found")
	}
	cons.Status = models.ConsultationDeclined
	cons.DeclineReason = reason
	m.rows[id] = cons
	return nil
}

func (m *memoryStore) CompleteClaimed(ctx context.Context, hospitalID, id, doctorID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cons, ok := m.rows[id]
	if !ok || cons.HospitalID != hospitalID || cons.Status != models.ConsultationClaimed ||
		cons.DoctorID == nil || *cons.DoctorID != doctorID {
		return apperrors.Conflict("consultation is not claimed by this doctor")
	}
	cons.Status = models.ConsultationCompleted
	cons.CompletedAt = &at
	m.rows[id] = cons
	return nil
}

func (m *memoryStore) MarkPaymentReady(ctx context.Context, hospitalID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cons, ok := m.rows[id]
	if !ok || cons.HospitalID != hospitalID {
		return apperrors.NotFound("consultation not found")
	}
	cons.PayReady = true
	m.rows[id] = cons
	return nil
}

type rxChecker struct{ exists bool }

func (c *rxChecker) Exists(ctx context.Context, hospitalID, consultationID uuid.UUID) (bool, error) {
	return c.exists, nil
}

type noopRebuilder struct {
	calls int
	err   error
}

func (n *noopRebuilder) Rebuild(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (models.RxCharge, error) {
	n.calls++
	return models.RxCharge{}, n.err
}

type recordingEvents struct {
	completed     int
	rebuildFailed int
}

func (e *recordingEvents) ConsultationCompleted(ctx context.Context, cons models.Consultation) {
	e.completed++
}

func (e *recordingEvents) ChargeRebuildFailed(ctx context.Context, cons models.Consultation, cause error) {
	e.rebuildFailed++
}

func testService() (*Service, *memoryStore, *rxChecker, *noopRebuilder, *recordingEvents) {
	store := newMemoryStore()
	checker := &rxChecker{}
	rebuilder := &noopRebuilder{}
	events := &recordingEvents{}
	return NewService(store, checker, rebuilder, events), store, checker, rebuilder, events
}

func seedQueued(t *testing.T, service *Service, store *memoryStore, ready bool) (models.Actor, models.Consultation) {
	t.Helper()
	hospitalID := uuid.New()
	nurse := models.Actor{ID: uuid.New(), HospitalID: hospitalID, Role: models.RoleNurse}
	cons, err := service.Create(context.Background(), nurse, models.CreateConsultationRequest{
		PatientID:      uuid.New(),
		ChiefComplaint: "persistent rash",
		ConditionType:  "skin",
	})
	if err != nil {
		t.Fatalf("failed to create consultation: %v", err)
	}
	if ready {
		if err := service.MarkPaymentReady(context.Background(), hospitalID, cons.ID); err != nil {
			t.Fatalf("failed to mark consultation ready: %v", err)
		}
	}
	return nurse, cons
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	service, store, _, _, _ := testService()
	nurse, cons := seedQueued(t, service, store, true)

	const doctors = 8
	var wg sync.WaitGroup
	results := make(chan error, doctors)
	winners := make(chan uuid.UUID, doctors)

	for i := 0; i < doctors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doctor := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
			_, err := service.Claim(context.Background(), doctor, cons.ID)
			results <- err
			if err == nil {
				winners <- doctor.ID
			}
		}()
	}
	wg.Wait()
	close(results)
	close(winners)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperrors.KindOf(err) == apperrors.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if successes != 1 || conflicts != doctors-1 {
		t.Fatalf("expected exactly one winner, got %d successes, %d conflicts", successes, conflicts)
	}

	winner := <-winners
	final, _ := store.Get(context.Background(), nurse.HospitalID, cons.ID)
	if final.Status != models.ConsultationClaimed || final.DoctorID == nil || *final.DoctorID != winner {
		t.Fatalf("consultation must carry exactly the winning doctor: %+v", final)
	}
}

func TestClaimRequiresPaymentReadiness(t *testing.T) {
	service, store, _, _, _ := testService()
	nurse, cons := seedQueued(t, service, store, false)

	doctor := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
	_, err := service.Claim(context.Background(), doctor, cons.ID)
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("expected conflict before fee settlement, got %v", err)
	}

	if err := service.MarkPaymentReady(context.Background(), nurse.HospitalID, cons.ID); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if _, err := service.Claim(context.Background(), doctor, cons.ID); err != nil {
		t.Fatalf("claim after readiness should succeed: %v", err)
	}
}

func TestCompleteRequiresPrescription(t *testing.T) {
	service, store, checker, _, _ := testService()
	nurse, cons := seedQueued(t, service, store, true)

	doctor := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
	if _, err := service.Claim(context.Background(), doctor, cons.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	checker.exists = false
	_, err := service.Complete(context.Background(), doctor, cons.ID)
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error without prescription, got %v", err)
	}
	current, _ := store.Get(context.Background(), nurse.HospitalID, cons.ID)
	if current.Status != models.ConsultationClaimed {
		t.Fatalf("status must remain claimed, got %s", current.Status)
	}

	checker.exists = true
	completed, err := service.Complete(context.Background(), doctor, cons.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.ConsultationCompleted || completed.CompletedAt == nil {
		t.Fatalf("unexpected completed consultation: %+v", completed)
	}
}

func TestCompleteByWrongDoctorForbidden(t *testing.T) {
	service, store, checker, _, _ := testService()
	nurse, cons := seedQueued(t, service, store, true)
	checker.exists = true

	owner := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
	if _, err := service.Claim(context.Background(), owner, cons.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	other := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
	_, err := service.Complete(context.Background(), other, cons.ID)
	if apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Fatalf("expected forbidden for non-owning doctor, got %v", err)
	}
}

func TestCompleteSurvivesRebuildFailure(t *testing.T) {
	service, store, checker, rebuilder, events := testService()
	nurse, cons := seedQueued(t, service, store, true)
	checker.exists = true
	rebuilder.err = apperrors.Validation("medicine not in catalog: Amoxicillin")

	doctor := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
	if _, err := service.Claim(context.Background(), doctor, cons.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	completed, err := service.Complete(context.Background(), doctor, cons.ID)
	if err != nil {
		t.Fatalf("completion must not fail on rebuild errors: %v", err)
	}
	if completed.Status != models.ConsultationCompleted {
		t.Fatalf("unexpected status %s", completed.Status)
	}
	if rebuilder.calls != 1 {
		t.Fatalf("expected one rebuild attempt, got %d", rebuilder.calls)
	}
	if events.rebuildFailed != 1 || events.completed != 1 {
		t.Fatalf("unexpected event counts: %+v", events)
	}
}

func TestDeclineFromQueueAndDefaultReason(t *testing.T) {
	service, store, _, _, _ := testService()
	nurse, cons := seedQueued(t, service, store, true)

	doctor := models.Actor{ID: uuid.New(), HospitalID: nurse.HospitalID, Role: models.RoleDoctor}
	declined, err := service.Decline(context.Background(), doctor, cons.ID, "")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != models.ConsultationDeclined || declined.DeclineReason != "no reason" {
		t.Fatalf("unexpected declined consultation: %+v", declined)
	}

	// terminal: cannot decline again
	if _, err := service.Decline(context.Background(), doctor, cons.ID, "x"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found when declining a terminal consultation, got %v", err)
	}
}

func TestMarkPaymentReadyIsIdempotent(t *testing.T) {
	service, store, _, _, _ := testService()
	nurse, cons := seedQueued(t, service, store, false)

	for i := 0; i < 3; i++ {
		if err := service.MarkPaymentReady(context.Background(), nurse.HospitalID, cons.ID); err != nil {
			t.Fatalf("mark ready attempt %d: %v", i, err)
		}
	}
	current, _ := store.Get(context.Background(), nurse.HospitalID, cons.ID)
	if !current.PayReady || current.Status != models.ConsultationQueued {
		t.Fatalf("readiness flag should be set without a status change: %+v", current)
	}
}

func TestScopedReadsHideForeignHospitals(t *testing.T) {
	service, store, _, _, _ := testService()
	_, cons := seedQueued(t, service, store, true)

	foreign := models.Actor{ID: uuid.New(), HospitalID: uuid.New(), Role: models.RoleDoctor}
	if _, err := service.Get(context.Background(), foreign, cons.ID); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found outside hospital scope, got %v", err)
	}
}
