package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphuraprojects/agrirent/internal/gateway"
	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// memDB backs the fakes below with maps guarded by one mutex.  The fakes
// keep the conditional-update semantics of the SQL repositories.
type memDB struct {
	mu        sync.Mutex
	seq       uint64
	users     map[uint64]model.User
	machines  map[uint64]model.Machine
	avail     map[uint64]model.Availability
	addresses map[uint64][]model.Address
	bookings  map[uint64]model.Booking
	payments  map[string]model.Payment
	invoices  map[uint64]model.Invoice
	tokens    map[string]fakeToken
}

type fakeToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

func newMemDB() *memDB {
	return &memDB{
		users:     map[uint64]model.User{},
		machines:  map[uint64]model.Machine{},
		avail:     map[uint64]model.Availability{},
		addresses: map[uint64][]model.Address{},
		bookings:  map[uint64]model.Booking{},
		payments:  map[string]model.Payment{},
		invoices:  map[uint64]model.Invoice{},
		tokens:    map[string]fakeToken{},
	}
}

func (db *memDB) next() uint64 {
	db.seq++
	return db.seq
}

// --- users ---

type fakeUsers struct{ *memDB }

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return u, repository.ErrNotFound
	}
	return u, nil
}

func (f fakeUsers) List(_ context.Context, role model.Role) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeUsers) Create(_ context.Context, u model.User) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.users {
		if x.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
	}
	u.ID = f.next()
	f.users[u.ID] = u
	return u.ID, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f fakeUsers) EmailOrPhoneTaken(_ context.Context, email string, phone *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email || (phone != nil && u.Phone != nil && *u.Phone == *phone) {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeUsers) SetBlocked(_ context.Context, id uint64, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Role == model.RoleAdmin {
		return repository.ErrNotFound
	}
	u.IsBlocked = blocked
	f.users[id] = u
	return nil
}

func (f fakeUsers) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Role == model.RoleAdmin {
		return repository.ErrNotFound
	}
	for _, b := range f.bookings {
		if b.FarmerID == id || b.OwnerID == id {
			return repository.ErrConflict
		}
	}
	delete(f.users, id)
	return nil
}

func (f fakeUsers) EnsureAdmin(ctx context.Context, email, hash string) (bool, error) {
	if _, err := f.GetByEmail(ctx, email); err == nil {
		return false, nil
	}
	_, err := f.Create(ctx, model.User{Name: "Administrator", Email: email, PasswordHash: hash, Role: model.RoleAdmin, IsVerified: true})
	return err == nil, err
}

// --- addresses ---

type fakeAddresses struct{ *memDB }

func (f fakeAddresses) DefaultForUser(ctx context.Context, userID uint64) (model.Address, error) {
	addrs, _ := f.ListByUser(ctx, userID)
	a, ok := model.DefaultAddress(addrs)
	if !ok {
		return a, repository.ErrNotFound
	}
	return a, nil
}

func (f fakeAddresses) ListByUser(_ context.Context, userID uint64) ([]model.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Address{}, f.addresses[userID]...), nil
}

func (f fakeAddresses) Create(_ context.Context, a *model.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.IsDefault {
		for i := range f.addresses[a.UserID] {
			f.addresses[a.UserID][i].IsDefault = false
		}
	}
	a.ID = f.next()
	f.addresses[a.UserID] = append(f.addresses[a.UserID], *a)
	return nil
}

func (f fakeAddresses) SetDefault(_ context.Context, userID, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, list := range f.addresses {
		for _, a := range list {
			if a.ID == addressID && uid != userID {
				return repository.ErrForbidden
			}
		}
	}
	found := false
	for i := range f.addresses[userID] {
		isIt := f.addresses[userID][i].ID == addressID
		found = found || isIt
		f.addresses[userID][i].IsDefault = isIt
	}
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func (f fakeAddresses) Delete(_ context.Context, userID, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.addresses[userID]
	for i, a := range list {
		if a.ID == addressID {
			f.addresses[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- machines ---

type fakeMachines struct{ *memDB }

func (f fakeMachines) GetByID(_ context.Context, id uint64) (model.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[id]
	if !ok {
		return m, repository.ErrNotFound
	}
	return m, nil
}

func (f fakeMachines) Create(_ context.Context, m *model.Machine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.machines {
		if x.RegistrationNumber == m.RegistrationNumber {
			return repository.ErrDuplicate
		}
	}
	m.ID = f.next()
	m.IsApproved = false
	f.machines[m.ID] = *m
	return nil
}

func (f fakeMachines) filter(keep func(model.Machine) bool) []model.Machine {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Machine{}
	for _, m := range f.machines {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f fakeMachines) ListBookable(_ context.Context, rf repository.MachineFilter) ([]model.Machine, error) {
	return f.filter(func(m model.Machine) bool {
		return m.Bookable() && (rf.Category == "" || m.Category == rf.Category)
	}), nil
}

func (f fakeMachines) ListByOwner(_ context.Context, ownerID uint64) ([]model.Machine, error) {
	return f.filter(func(m model.Machine) bool { return m.OwnerID == ownerID }), nil
}

func (f fakeMachines) ListPendingApproval(context.Context) ([]model.Machine, error) {
	return f.filter(func(m model.Machine) bool { return m.Approval() == model.ApprovalPending }), nil
}

func (f fakeMachines) Update(_ context.Context, m *model.Machine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.machines[m.ID]
	if !ok || cur.OwnerID != m.OwnerID {
		return repository.ErrNotFound
	}
	upd := *m
	upd.IsApproved = cur.IsApproved
	upd.AvailabilityStatus = cur.AvailabilityStatus
	upd.RejectionReason = cur.RejectionReason
	if !cur.IsApproved {
		upd.RejectionReason = nil
	}
	f.machines[m.ID] = upd
	return nil
}

func (f fakeMachines) Approve(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[id]
	if !ok || !m.HasOwnershipProof() {
		return repository.ErrConflict
	}
	m.IsApproved = true
	m.RejectionReason = nil
	f.machines[id] = m
	return nil
}

func (f fakeMachines) Reject(_ context.Context, id uint64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsApproved = false
	m.RejectionReason = &reason
	f.machines[id] = m
	return nil
}

func (f fakeMachines) Delete(_ context.Context, id, ownerID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[id]
	if !ok || (ownerID != 0 && m.OwnerID != ownerID) {
		return repository.ErrNotFound
	}
	for _, b := range f.bookings {
		if b.MachineID == id {
			return repository.ErrConflict
		}
	}
	delete(f.machines, id)
	return nil
}

type fakeAvailability struct{ *memDB }

func (f fakeAvailability) Get(_ context.Context, machineID uint64) (model.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.avail[machineID]
	if !ok {
		return a, repository.ErrNotFound
	}
	return a, nil
}

func (f fakeAvailability) Upsert(_ context.Context, ownerID uint64, a model.Availability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machines[a.MachineID]
	if !ok {
		return repository.ErrNotFound
	}
	if m.OwnerID != ownerID {
		return repository.ErrForbidden
	}
	f.avail[a.MachineID] = a
	m.AvailabilityStatus = a.IsAvailable
	f.machines[a.MachineID] = m
	return nil
}

// --- bookings ---

type fakeBookings struct {
	*memDB
	// beforeUpdate runs between the service's read and its conditional
	// update, to simulate a concurrent request.
	beforeUpdate func()
}

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.next()
	b.BookingStatus = model.BookingPending
	b.PaymentStatus = model.PaymentPending
	b.CreatedAt = time.Now().UTC()
	f.bookings[b.ID] = *b
	return nil
}

func (f *fakeBookings) GetByID(_ context.Context, id uint64) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return b, repository.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) List(_ context.Context, q repository.BookingQuery) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Booking{}
	for _, b := range f.bookings {
		if (q.FarmerID == 0 || b.FarmerID == q.FarmerID) &&
			(q.OwnerID == 0 || b.OwnerID == q.OwnerID) &&
			(q.Status == "" || b.BookingStatus == q.Status) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBookings) hook() {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
		f.beforeUpdate = nil
	}
}

func (f *fakeBookings) Decide(_ context.Context, id uint64, to model.BookingStatus, reason *string, at time.Time) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.BookingStatus != model.BookingPending {
		return repository.ErrConflict
	}
	b.BookingStatus = to
	b.RejectionReason = reason
	b.DecidedAt = &at
	f.bookings[id] = b
	return nil
}

func (f *fakeBookings) Transition(_ context.Context, id uint64, from, to model.BookingStatus, unpaidOnly bool) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.BookingStatus != from || (unpaidOnly && b.PaymentStatus == model.PaymentPaid) {
		return repository.ErrConflict
	}
	b.BookingStatus = to
	f.bookings[id] = b
	return nil
}

func (f *fakeBookings) set(id uint64, mut func(*model.Booking)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bookings[id]
	mut(&b)
	f.bookings[id] = b
}

// --- payments & invoices ---

type fakePayments struct{ *memDB }

func (f fakePayments) Create(_ context.Context, p *model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.payments[p.GatewayOrderID]; dup {
		return repository.ErrDuplicate
	}
	p.ID = f.next()
	p.PaymentStatus = model.PaymentPending
	f.payments[p.GatewayOrderID] = *p
	return nil
}

func (f fakePayments) GetByOrderID(_ context.Context, orderID string) (model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return p, repository.ErrNotFound
	}
	return p, nil
}

func (f fakePayments) List(_ context.Context, q repository.PaymentQuery) ([]model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Payment{}
	for _, p := range f.payments {
		if (q.FarmerID == 0 || p.FarmerID == q.FarmerID) && (q.OwnerID == 0 || p.OwnerID == q.OwnerID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakePayments) Confirm(_ context.Context, c repository.Confirmation) (model.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[c.OrderID]
	if !ok || p.BookingID != c.BookingID || p.PaymentStatus != model.PaymentPending {
		return model.Invoice{}, repository.ErrConflict
	}
	b := f.bookings[c.BookingID]
	if b.PaymentStatus == model.PaymentPaid {
		return model.Invoice{}, repository.ErrConflict
	}
	p.PaymentStatus = model.PaymentPaid
	p.GatewayPaymentID = &c.PaymentID
	p.GatewaySignature = &c.Signature
	f.payments[c.OrderID] = p
	b.PaymentStatus = model.PaymentPaid
	f.bookings[c.BookingID] = b
	inv := c.Invoice
	inv.ID = f.next()
	f.invoices[c.BookingID] = inv
	return inv, nil
}

func (f fakePayments) MarkFailed(_ context.Context, orderID string, farmerID uint64) (model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return p, repository.ErrNotFound
	}
	if p.FarmerID != farmerID {
		return p, repository.ErrForbidden
	}
	if p.PaymentStatus != model.PaymentPending {
		return p, repository.ErrConflict
	}
	p.PaymentStatus = model.PaymentFailed
	f.payments[orderID] = p
	if b := f.bookings[p.BookingID]; b.PaymentStatus == model.PaymentPending {
		b.PaymentStatus = model.PaymentFailed
		f.bookings[p.BookingID] = b
	}
	return p, nil
}

type fakeInvoices struct{ *memDB }

func (f fakeInvoices) GetByBookingID(_ context.Context, bookingID uint64) (model.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[bookingID]
	if !ok {
		return inv, repository.ErrNotFound
	}
	return inv, nil
}

// --- tokens ---

type fakeTokens struct{ *memDB }

func (f fakeTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[hash] = fakeToken{userID: userID, exp: exp}
	return nil
}

func (f fakeTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok || t.revoked || time.Now().After(t.exp) || f.users[t.userID].IsBlocked {
		return 0, repository.ErrNotFound
	}
	return t.userID, nil
}

func (f fakeTokens) RevokeByHash(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok || t.revoked {
		return repository.ErrConflict
	}
	t.revoked = true
	f.tokens[hash] = t
	return nil
}

func (f fakeTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, t := range f.tokens {
		if t.userID == userID {
			t.revoked = true
			f.tokens[h] = t
		}
	}
	return nil
}

// --- collaborators ---

type fakeGateway struct {
	secret string
	err    error
	orders int
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (gateway.Order, error) {
	if g.err != nil {
		return gateway.Order{}, g.err
	}
	g.orders++
	return gateway.Order{ID: fmt.Sprintf("order_%d", g.orders), Amount: amountMinor, Currency: currency, Receipt: receipt}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.ValidSignature(g.secret, orderID, paymentID, signature)
}

func (g *fakeGateway) KeyID() string { return "rzp_test" }

type recNotifier struct {
	mu   sync.Mutex
	sent []queue.Notification
	err  error
}

func (n *recNotifier) Notify(_ context.Context, msg queue.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recNotifier) ofKind(k queue.Kind) []queue.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []queue.Notification
	for _, m := range n.sent {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

type testLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *testLogger) Infof(string, ...interface{}) {}
func (l *testLogger) Errorf(string, ...interface{}) {}
func (l *testLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

// --- fixture ---

type fixture struct {
	db       *memDB
	bookings *fakeBookings
	notifier *recNotifier
	log      *testLogger
	gw       *fakeGateway

	booking  *BookingService
	payment  *PaymentService
	machine  *MachineService
	earnings *EarningsService
}

func newFixture() *fixture {
	db := newMemDB()
	fx := &fixture{
		db:       db,
		bookings: &fakeBookings{memDB: db},
		notifier: &recNotifier{},
		log:      &testLogger{},
		gw:       &fakeGateway{secret: "gw-secret"},
	}
	fx.booking = NewBookingService(fx.bookings, fakeMachines{db}, fakeUsers{db}, fakeAddresses{db}, fx.notifier, fx.log)
	fx.payment = NewPaymentService(fakePayments{db}, fx.bookings, fakeMachines{db}, fakeUsers{db}, fakeInvoices{db}, fx.gw,
		PaymentSettings{CommissionRate: decimal.RequireFromString("0.10"), TaxRate: decimal.RequireFromString("0.18"), Currency: "INR"},
		fx.notifier, fx.log)
	fx.machine = NewMachineService(fakeMachines{db}, fakeAvailability{db}, fakeUsers{db}, fx.notifier, fx.log)
	fx.earnings = NewEarningsService(fakeEarnings{db}, decimal.RequireFromString("0.10"))
	return fx
}

func (fx *fixture) addUser(role model.Role, email string) model.User {
	id, err := fakeUsers{fx.db}.Create(context.Background(), model.User{Name: email, Email: email, Role: role, IsVerified: true})
	if err != nil {
		panic(err)
	}
	return fx.db.users[id]
}

func ptr[T any](v T) *T { return &v }

// addMachine lists an approved, available machine at (lat, lng).
func (fx *fixture) addMachine(ownerID uint64, price, rate string, lat, lng float64) model.Machine {
	m := model.Machine{
		OwnerID:            ownerID,
		Name:               "Tractor",
		RegistrationNumber: fmt.Sprintf("REG-%d", fx.db.seq+1),
		FuelType:           model.FuelDiesel,
		Category:           model.CategoryTractor,
		PricePerHour:       decimal.RequireFromString(price),
		TransportRatePerKm: decimal.RequireFromString(rate),
		Lat:                ptr(lat),
		Lng:                ptr(lng),
		Images:             []string{"https://img/1.jpg"},
		OwnershipProofURL:  ptr("https://docs/proof.pdf"),
		AvailabilityStatus: true,
	}
	if err := (fakeMachines{fx.db}).Create(context.Background(), &m); err != nil {
		panic(err)
	}
	m.IsApproved = true
	fx.db.machines[m.ID] = m
	return m
}

func (fx *fixture) addAddress(userID uint64, lat, lng *float64) {
	a := model.Address{UserID: userID, Line1: "Farm road", City: "Nashik", Pincode: "422001", Lat: lat, Lng: lng, IsDefault: true}
	if err := (fakeAddresses{fx.db}).Create(context.Background(), &a); err != nil {
		panic(err)
	}
}

// --- earnings ---

type fakeEarnings struct{ *memDB }

func (f fakeEarnings) match(b model.Booking, ownerID uint64, from, to time.Time) bool {
	counted := false
	for _, s := range model.RevenueStatuses {
		counted = counted || b.BookingStatus == s
	}
	return counted && (ownerID == 0 || b.OwnerID == ownerID) &&
		(from.IsZero() || !b.CreatedAt.Before(from)) && (to.IsZero() || b.CreatedAt.Before(to))
}

func (f fakeEarnings) Totals(_ context.Context, ownerID uint64, from, to time.Time) (repository.Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := repository.Totals{Revenue: decimal.Zero}
	for _, b := range f.bookings {
		if f.match(b, ownerID, from, to) {
			t.Bookings++
			t.Revenue = t.Revenue.Add(b.TotalAmount)
		}
	}
	return t, nil
}

func (f fakeEarnings) Points(_ context.Context, ownerID uint64, from, to time.Time) ([]repository.RevenuePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.RevenuePoint
	for _, b := range f.bookings {
		if f.match(b, ownerID, from, to) {
			out = append(out, repository.RevenuePoint{CreatedAt: b.CreatedAt, Amount: b.TotalAmount})
		}
	}
	return out, nil
}
