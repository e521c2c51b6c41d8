package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/engine"
)

// Store — состояние выполнения одного приложения.
//
// Содержит:
//   - Описание приложения и построенный граф зависимостей
//   - Value Bag (filename → значение)
//   - Метаданные выполнения по action
//   - Актуальные тикеты выполнения (для подавления поздних записей)
type Store struct {
	app   *domain.App
	graph *engine.Graph

	// values — Value Bag.
	values map[string]any

	// meta — метаданные выполнения (actionID → meta).
	meta map[string]domain.ExecutionMeta

	// tickets — актуальный тикет выполнения (actionID → seq).
	tickets map[string]uint64
	seq     uint64

	// extra — неизвестные поля загруженного снимка.
	extra map[string]domain.RawField

	// mu — мьютекс для потокобезопасного доступа.
	mu sync.RWMutex

	listeners    map[uint64]Listener
	nextListener uint64
	listenersMu  sync.Mutex

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Store.
type Config struct {
	// Logger
	Logger *slog.Logger

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

// New создаёт Store для приложения.
// Значения по умолчанию полей ввода сразу попадают в Value Bag.
func New(app *domain.App, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if app == nil {
		app = &domain.App{}
	}

	s := &Store{
		app:       app.Clone(),
		values:    make(map[string]any),
		meta:      make(map[string]domain.ExecutionMeta),
		tickets:   make(map[string]uint64),
		listeners: make(map[uint64]Listener),
		logger:    logger,
		now:       now,
	}
	s.graph = engine.BuildGraph(s.app)
	s.seedDefaults()

	return s
}

// seedDefaults записывает DefaultValue полей ввода, для которых ещё нет значения.
// Вызывается под блокировкой.
func (s *Store) seedDefaults() {
	for _, input := range s.app.Inputs {
		if input.DefaultValue == nil {
			continue
		}
		if _, ok := s.values[input.Filename]; ok {
			continue
		}
		s.values[input.Filename] = s.copyValue(input.Filename, input.DefaultValue)
	}
}

// copyValue возвращает копию значения или исходную ссылку,
// если значение не копируется.
func (s *Store) copyValue(key string, value any) any {
	cp, err := DeepCopy(value)
	if err != nil {
		s.logger.Warn("value copy failed, storing original reference",
			"key", key,
			"error", err,
		)
		return value
	}
	return cp
}

// --- Подписки ---

// Subscribe добавляет подписчика и возвращает функцию отписки.
// Порядок уведомления подписчиков не гарантируется.
func (s *Store) Subscribe(listener Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// notify синхронно уведомляет подписчиков. Вызывается без блокировки mu,
// чтобы подписчик мог читать Store.
func (s *Store) notify(events ...Event) {
	if len(events) == 0 {
		return
	}

	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, event := range events {
		for _, l := range listeners {
			s.deliver(l, event)
		}
	}
}

func (s *Store) deliver(l Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state listener panicked",
				"event", event.Kind,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	l(event)
}

func (s *Store) event(kind EventKind) Event {
	return Event{Kind: kind, Time: s.now().UTC()}
}

func (s *Store) metaEvent(actionID string, status domain.ExecStatus) Event {
	e := s.event(EventMetaChanged)
	e.ActionID = actionID
	e.Status = status
	return e
}

// --- Value Bag ---

// SetValue записывает копию значения в Value Bag.
// Если значение не удаётся скопировать, сохраняется исходная ссылка.
func (s *Store) SetValue(key string, value any) {
	s.mu.Lock()
	s.values[key] = s.copyValue(key, value)
	s.mu.Unlock()

	e := s.event(EventValueSet)
	e.Key = key
	s.notify(e)
}

// DeleteValue удаляет значение поля ввода (пользователь очистил поле).
func (s *Store) DeleteValue(key string) {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if existed {
		e := s.event(EventValueDeleted)
		e.Key = key
		s.notify(e)
	}
}

// GetValue возвращает копию значения.
func (s *Store) GetValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok || v == nil {
		return nil, false
	}
	if cp, err := DeepCopy(v); err == nil {
		return cp, true
	}
	return v, true
}

// HasValue проверяет, что значение есть и не nil.
func (s *Store) HasValue(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.hasValue(key)
}

func (s *Store) hasValue(key string) bool {
	v, ok := s.values[key]
	return ok && v != nil
}

// Values возвращает копию Value Bag.
func (s *Store) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyValues(s.values)
}

// --- Приложение и граф ---

// App возвращает копию описания приложения.
func (s *Store) App() *domain.App {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.app.Clone()
}

// Action возвращает копию action по ID.
func (s *Store) Action(id string) (domain.Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := s.app.Action(id)
	if a == nil {
		return domain.Action{}, false
	}
	return a.Clone(), true
}

// Graph возвращает текущий граф зависимостей.
// Граф не изменяется после построения, его можно читать без блокировки.
func (s *Store) Graph() *engine.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.graph
}

// SetApp заменяет описание приложения и перестраивает граф.
// Метаданные удалённых action отбрасываются, значения сохраняются.
func (s *Store) SetApp(app *domain.App) {
	if app == nil {
		app = &domain.App{}
	}

	s.mu.Lock()
	s.app = app.Clone()
	for id := range s.meta {
		if s.app.Action(id) == nil {
			delete(s.meta, id)
			delete(s.tickets, id)
		}
	}
	s.rebuild()
	s.seedDefaults()
	s.mu.Unlock()

	s.notify(s.event(EventStructureChanged))
}

// UpsertAction добавляет action в конец списка или заменяет существующий
// с тем же ID и перестраивает граф.
func (s *Store) UpsertAction(action domain.Action) {
	s.mu.Lock()
	if existing := s.app.Action(action.ID); existing != nil {
		*existing = action.Clone()
	} else {
		s.app.Actions = append(s.app.Actions, action.Clone())
	}
	s.syncActionState(action.ID)
	s.rebuild()
	s.mu.Unlock()

	e := s.event(EventStructureChanged)
	e.ActionID = action.ID
	s.notify(e)
}

// RemoveAction удаляет action и его метаданные, перестраивает граф.
// Результат action в Value Bag остаётся.
func (s *Store) RemoveAction(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.app.Actions {
		if s.app.Actions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	s.app.Actions = append(s.app.Actions[:idx], s.app.Actions[idx+1:]...)
	delete(s.meta, id)
	delete(s.tickets, id)
	s.rebuild()
	s.mu.Unlock()

	e := s.event(EventStructureChanged)
	e.ActionID = id
	s.notify(e)
	return nil
}

// rebuild перестраивает граф. Вызывается под блокировкой.
func (s *Store) rebuild() {
	s.graph = engine.BuildGraph(s.app)
}

// --- Статусы ---

// GetActionStatus возвращает статус action.
func (s *Store) GetActionStatus(id string) (ActionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.app.Action(id) == nil {
		return ActionStatus{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	return s.status(id), nil
}

// Statuses возвращает статусы всех action в порядке списка.
func (s *Store) Statuses() []ActionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActionStatus, 0, len(s.app.Actions))
	for _, a := range s.app.Actions {
		out = append(out, s.status(a.ID))
	}
	return out
}

// status вычисляет статус action. Вызывается под блокировкой.
func (s *Store) status(id string) ActionStatus {
	meta, ok := s.meta[id]
	if !ok {
		meta = domain.IdleMeta()
	}

	missing := make([]string, 0)
	for _, key := range s.graph.Dependencies[id] {
		if !s.hasValue(key) {
			missing = append(missing, key)
		}
	}

	onCycle := s.graph.HasCycle(id)

	st := ActionStatus{
		ActionID:              id,
		Playable:              !onCycle && len(missing) == 0,
		Executed:              meta.Status == domain.ExecStatusSuccess,
		Status:                meta.Status,
		Error:                 meta.Error,
		Attempts:              meta.Attempts,
		DurationMs:            meta.DurationMs,
		MissingDependencies:   missing,
		HasCircularDependency: onCycle,
		CyclePath:             s.graph.CyclePath(id),
	}
	if meta.ExecutedAt != nil {
		t := *meta.ExecutedAt
		st.ExecutedAt = &t
	}
	return st
}

// Meta возвращает метаданные выполнения action.
func (s *Store) Meta(id string) domain.ExecutionMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.meta[id]; ok {
		return meta.Clone()
	}
	return domain.IdleMeta()
}

// --- Метаданные ---

// UpdateExecutionMeta частично обновляет метаданные action.
func (s *Store) UpdateExecutionMeta(id string, patch MetaPatch) error {
	s.mu.Lock()
	if s.app.Action(id) == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	meta := patch.apply(s.currentMeta(id))
	s.meta[id] = meta
	s.syncActionState(id)
	s.mu.Unlock()

	s.notify(s.metaEvent(id, meta.Status))
	return nil
}

// MarkActionFailed переводит action в статус error.
//
// Если action выполнялся, выполнение прерывается (его тикет становится
// неактуальным), а попытка уже учтена при старте. Иначе счётчик
// попыток увеличивается.
func (s *Store) MarkActionFailed(id string, cause error) error {
	s.mu.Lock()
	if s.app.Action(id) == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	meta := s.currentMeta(id)
	if _, running := s.tickets[id]; running {
		delete(s.tickets, id)
	} else {
		meta.Attempts++
	}

	now := s.now().UTC()
	meta.Status = domain.ExecStatusError
	meta.Error = errorMessage(cause)
	meta.ExecutedAt = &now
	s.meta[id] = meta
	s.syncActionState(id)
	s.mu.Unlock()

	s.notify(s.metaEvent(id, meta.Status))
	return nil
}

// ResetActionExecution сбрасывает метаданные action в idle и удаляет его
// результат из Value Bag. Повторный вызов ничего не меняет.
// Счётчик попыток сохраняется: он только растёт в рамках сессии.
func (s *Store) ResetActionExecution(id string) error {
	s.mu.Lock()
	action := s.app.Action(id)
	if action == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	prev := s.currentMeta(id)
	meta := domain.IdleMeta()
	meta.Attempts = prev.Attempts
	meta.Extra = prev.Extra
	s.meta[id] = meta
	delete(s.tickets, id)

	_, hadValue := s.values[action.Filename]
	delete(s.values, action.Filename)
	filename := action.Filename
	s.syncActionState(id)
	s.mu.Unlock()

	events := []Event{s.metaEvent(id, meta.Status)}
	if hadValue {
		e := s.event(EventValueDeleted)
		e.Key = filename
		events = append(events, e)
	}
	s.notify(events...)
	return nil
}

// currentMeta возвращает метаданные или idle. Вызывается под блокировкой.
func (s *Store) currentMeta(id string) domain.ExecutionMeta {
	if meta, ok := s.meta[id]; ok {
		return meta
	}
	return domain.IdleMeta()
}

// syncActionState обновляет кэш состояния action для UI. Вызывается под блокировкой.
func (s *Store) syncActionState(id string) {
	if a := s.app.Action(id); a != nil {
		a.State = domain.StateFromStatus(s.currentMeta(id).Status)
	}
}

// --- Жизненный цикл выполнения ---

// BeginExecution переводит action в loading и выдаёт тикет выполнения.
// Счётчик попыток увеличивается здесь, поэтому каждая попытка учитывается один раз.
func (s *Store) BeginExecution(id string) (Ticket, error) {
	s.mu.Lock()
	if s.app.Action(id) == nil {
		s.mu.Unlock()
		return Ticket{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	s.seq++
	ticket := Ticket{ActionID: id, StartedAt: s.now(), seq: s.seq}
	s.tickets[id] = ticket.seq

	meta := s.currentMeta(id)
	meta.Status = domain.ExecStatusLoading
	meta.Error = ""
	meta.Attempts++
	s.meta[id] = meta
	s.syncActionState(id)
	s.mu.Unlock()

	s.notify(s.metaEvent(id, meta.Status))
	return ticket, nil
}

// IsCurrent проверяет, что тикет всё ещё актуален.
func (s *Store) IsCurrent(ticket Ticket) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.isCurrent(ticket)
}

func (s *Store) isCurrent(ticket Ticket) bool {
	seq, ok := s.tickets[ticket.ActionID]
	return ok && seq == ticket.seq
}

// CompleteExecution записывает результат action и переводит его в success.
// Возвращает false, если тикет неактуален (выполнение отменено или перезапущено).
func (s *Store) CompleteExecution(ticket Ticket, value any, duration time.Duration) bool {
	s.mu.Lock()
	action := s.app.Action(ticket.ActionID)
	if action == nil || !s.isCurrent(ticket) {
		s.mu.Unlock()
		return false
	}
	delete(s.tickets, ticket.ActionID)

	filename := action.Filename
	s.values[filename] = s.copyValue(filename, value)

	now := s.now().UTC()
	meta := s.currentMeta(ticket.ActionID)
	meta.Status = domain.ExecStatusSuccess
	meta.Error = ""
	meta.ExecutedAt = &now
	meta.DurationMs = duration.Milliseconds()
	s.meta[ticket.ActionID] = meta
	s.syncActionState(ticket.ActionID)
	s.mu.Unlock()

	e := s.event(EventValueSet)
	e.Key = filename
	s.notify(e, s.metaEvent(ticket.ActionID, meta.Status))
	return true
}

// FailExecution переводит action в error.
// Возвращает false, если тикет неактуален.
func (s *Store) FailExecution(ticket Ticket, cause error, duration time.Duration) bool {
	s.mu.Lock()
	if s.app.Action(ticket.ActionID) == nil || !s.isCurrent(ticket) {
		s.mu.Unlock()
		return false
	}
	delete(s.tickets, ticket.ActionID)

	now := s.now().UTC()
	meta := s.currentMeta(ticket.ActionID)
	meta.Status = domain.ExecStatusError
	meta.Error = errorMessage(cause)
	meta.ExecutedAt = &now
	meta.DurationMs = duration.Milliseconds()
	s.meta[ticket.ActionID] = meta
	s.syncActionState(ticket.ActionID)
	s.mu.Unlock()

	s.notify(s.metaEvent(ticket.ActionID, meta.Status))
	return true
}

// AbortExecution возвращает action в idle (отмена выполнения).
// Возвращает false, если тикет неактуален.
func (s *Store) AbortExecution(ticket Ticket) bool {
	s.mu.Lock()
	if s.app.Action(ticket.ActionID) == nil || !s.isCurrent(ticket) {
		s.mu.Unlock()
		return false
	}
	delete(s.tickets, ticket.ActionID)

	meta := s.currentMeta(ticket.ActionID)
	meta.Status = domain.ExecStatusIdle
	meta.Error = ""
	s.meta[ticket.ActionID] = meta
	s.syncActionState(ticket.ActionID)
	s.mu.Unlock()

	s.notify(s.metaEvent(ticket.ActionID, meta.Status))
	return true
}

// --- Снимки ---

// ExecutionState возвращает снимок состояния для сохранения.
func (s *Store) ExecutionState() *domain.ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &domain.ExecutionState{
		Values:        copyValues(s.values),
		ExecutionMeta: make(map[string]domain.ExecutionMeta, len(s.meta)),
		Timestamp:     s.now().UTC(),
	}
	for id, meta := range s.meta {
		st.ExecutionMeta[id] = meta.Clone()
	}
	if len(s.extra) > 0 {
		st.Extra = make(map[string]domain.RawField, len(s.extra))
		for k, v := range s.extra {
			st.Extra[k] = append(domain.RawField(nil), v...)
		}
	}
	return st
}

// LoadFromState заменяет Value Bag и метаданные содержимым снимка.
//
// Статус loading из снимка сбрасывается в idle: после загрузки
// ни одно выполнение не может быть активным.
func (s *Store) LoadFromState(st *domain.ExecutionState) error {
	if st == nil {
		return ErrNilState
	}

	s.mu.Lock()
	s.values = make(map[string]any, len(st.Values))
	for k, v := range st.Values {
		s.values[k] = s.copyValue(k, v)
	}

	s.meta = make(map[string]domain.ExecutionMeta, len(st.ExecutionMeta))
	for id, meta := range st.ExecutionMeta {
		meta = meta.Clone()
		if meta.Status == domain.ExecStatusLoading || meta.Status == "" {
			meta.Status = domain.ExecStatusIdle
		}
		s.meta[id] = meta
	}
	s.tickets = make(map[string]uint64)

	s.extra = nil
	if len(st.Extra) > 0 {
		s.extra = make(map[string]domain.RawField, len(st.Extra))
		for k, v := range st.Extra {
			s.extra[k] = append(domain.RawField(nil), v...)
		}
	}

	for _, a := range s.app.Actions {
		s.syncActionState(a.ID)
	}
	s.mu.Unlock()

	s.notify(s.event(EventStateLoaded))
	return nil
}

// ValueKeys возвращает отсортированный список ключей Value Bag.
func (s *Store) ValueKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// IsUnknownAction проверяет, что ошибка — ErrUnknownAction.
func IsUnknownAction(err error) bool {
	return errors.Is(err, ErrUnknownAction)
}
