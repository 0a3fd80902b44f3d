/**
 * @description
 * Account model and storage for the development backend. Accounts are kept
 * either in memory (default) or in PostgreSQL when DATABASE_URL is set.
 * Passwords are stored as bcrypt hashes.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: password hashing
 */
package devbackend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("an account with this username or email already exists")
)

// Account is a patient or nurse login.
type Account struct {
	ID           int64
	Role         domain.Role
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// CheckPassword reports whether password matches the stored hash.
func (a *Account) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) == nil
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// AccountRepository stores accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) (int64, error)
	FindByUsername(ctx context.Context, role domain.Role, username string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePassword(ctx context.Context, id int64, hash []byte) error
	Delete(ctx context.Context, id int64) error
	SearchPatients(ctx context.Context, searchBy, query string) ([]*Account, error)
}

// MemoryAccountRepository is an in-process AccountRepository.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{nextID: 1, accounts: make(map[int64]*Account)}
}

func (r *MemoryAccountRepository) Create(_ context.Context, account *Account) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Username, account.Username) || strings.EqualFold(existing.Email, account.Email) {
			return 0, ErrAccountExists
		}
	}

	stored := *account
	stored.ID = r.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.accounts[stored.ID] = &stored
	r.nextID++
	return stored.ID, nil
}

func (r *MemoryAccountRepository) FindByUsername(_ context.Context, role domain.Role, username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if account.Role == role && strings.EqualFold(account.Username, username) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *MemoryAccountRepository) FindByID(_ context.Context, id int64) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *MemoryAccountRepository) FindByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if strings.EqualFold(account.Email, email) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *MemoryAccountRepository) UpdatePassword(_ context.Context, id int64, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = hash
	return nil
}

func (r *MemoryAccountRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *MemoryAccountRepository) SearchPatients(_ context.Context, searchBy, query string) ([]*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	var out []*Account
	for _, account := range r.accounts {
		if account.Role != domain.RolePatient || !matchesPatient(account, searchBy, needle) {
			continue
		}
		copied := *account
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesPatient(account *Account, searchBy, needle string) bool {
	if searchBy == "id" {
		return strconv.FormatInt(account.ID, 10) == needle
	}
	return strings.Contains(strings.ToLower(account.Username), needle) ||
		strings.Contains(strings.ToLower(account.Email), needle)
}

// SeedAccount is one entry of SEED_ACCOUNTS.
type SeedAccount struct {
	Role     domain.Role
	Username string
	Password string
	Email    string
}

// ParseSeedAccounts reads "role:username:password:email" entries separated
// by commas.
func ParseSeedAccounts(raw string) ([]SeedAccount, error) {
	var seeds []SeedAccount
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid SEED_ACCOUNTS entry %q: want role:username:password:email", entry)
		}
		role, err := domain.ParseRole(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid SEED_ACCOUNTS entry %q: %w", entry, err)
		}
		seeds = append(seeds, SeedAccount{Role: role, Username: parts[1], Password: parts[2], Email: parts[3]})
	}
	return seeds, nil
}

// Seed creates the given accounts, skipping ones that already exist.
func Seed(ctx context.Context, repo AccountRepository, seeds []SeedAccount) error {
	for _, seed := range seeds {
		hash, err := HashPassword(seed.Password)
		if err != nil {
			return err
		}
		_, err = repo.Create(ctx, &Account{Role: seed.Role, Username: seed.Username, Email: seed.Email, PasswordHash: hash})
		if err != nil && !errors.Is(err, ErrAccountExists) {
			return fmt.Errorf("failed to seed account %s: %w", seed.Username, err)
		}
	}
	return nil
}
