package bot

import (
	"fmt"
	"sync"

	"github.com/thinh267/stat-arb/internal/models"
)

// Account - единственный владелец баланса счёта.
//
// Открытие и закрытие позиций меняют баланс только через Reserve,
// Refund и Settle; проверка и списание выполняются под одной
// блокировкой, поэтому параллельные открытия не уводят баланс в минус.
type Account struct {
	mu      sync.Mutex
	size    float64
	balance float64
}

// NewAccount создаёт счёт с балансом, равным размеру счёта
func NewAccount(size float64) *Account {
	a := &Account{size: size, balance: size}
	Balance.Set(size)
	return a
}

// Size возвращает размер счёта (DAILY_LIMIT)
func (a *Account) Size() float64 {
	return a.size
}

// Balance возвращает доступный баланс
func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Reserve списывает amount, если его покрывает баланс
func (a *Account) Reserve(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve %.4f: non-positive amount: %w", amount, models.ErrAdmissionRejected)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if amount > a.balance {
		return fmt.Errorf("reserve %.4f exceeds balance %.4f: %w", amount, a.balance, models.ErrAdmissionRejected)
	}
	a.balance -= amount
	Balance.Set(a.balance)
	return nil
}

// Refund возвращает неиспользованный резерв. Отрицательная сумма
// досписывает разницу, если заполнение дороже резерва.
func (a *Account) Refund(amount float64) {
	if amount == 0 {
		return
	}
	a.mu.Lock()
	a.balance += amount
	Balance.Set(a.balance)
	a.mu.Unlock()
}

// Settle зачисляет капитал закрытой позиции вместе с pnl
func (a *Account) Settle(capital, pnl float64) {
	a.mu.Lock()
	a.balance += capital + pnl
	Balance.Set(a.balance)
	a.mu.Unlock()
}

// Restore восстанавливает баланс из хранилища после рестарта:
// размер счёта - капитал открытых позиций + реализованный pnl
func (a *Account) Restore(s models.CapitalSummary) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.size - s.OpenCapital + s.RealizedPNL
	Balance.Set(a.balance)
	return a.balance
}
