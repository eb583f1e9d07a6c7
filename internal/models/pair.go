package models

import "time"

// Pair представляет пару инструментов, отобранную сканером за день
type Pair struct {
	ID                  int       `json:"id" db:"id"`
	Pair1               string    `json:"pair1" db:"pair1"`                             // BTCUSDT
	Pair2               string    `json:"pair2" db:"pair2"`                             // ETHUSDT
	Date                time.Time `json:"date" db:"date"`                               // день запуска сканера (UTC)
	Correlation         float64   `json:"correlation" db:"correlation"`                 // Пирсон по close
	RollingCorrelation  float64   `json:"rolling_correlation" db:"rolling_correlation"` // среднее 7-периодной корреляции
	CointegrationPValue float64   `json:"cointegration_p_value" db:"cointegration_p_value"`
	IsCointegrated      bool      `json:"is_cointegrated" db:"is_cointegrated"`
	Volatility1         float64   `json:"volatility_1" db:"volatility_1"`
	Volatility2         float64   `json:"volatility_2" db:"volatility_2"`
	Rank                int       `json:"rank" db:"rank"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// Symbols возвращает обе ноги пары
func (p *Pair) Symbols() (string, string) {
	return p.Pair1, p.Pair2
}

// RankingSnapshot - запись часового ранжирования, только добавление.
// Актуальным считается снимок с максимальным timestamp.
type RankingSnapshot struct {
	ID          int       `json:"id" db:"id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	PairID      int       `json:"pair_id" db:"pair_id"`
	Rank        int       `json:"rank" db:"rank"`
	Correlation float64   `json:"correlation" db:"correlation"`
	Volatility1 float64   `json:"volatility_1" db:"volatility_1"`
	Volatility2 float64   `json:"volatility_2" db:"volatility_2"`
}

// RankedPair - пара вместе с её текущим рангом (из последнего снимка
// или из самой пары, если снимков ещё нет)
type RankedPair struct {
	PairID      int       `json:"pair_id"`
	Pair1       string    `json:"pair1"`
	Pair2       string    `json:"pair2"`
	Rank        int       `json:"rank"`
	Correlation float64   `json:"correlation"`
	Volatility1 float64   `json:"volatility_1"`
	Volatility2 float64   `json:"volatility_2"`
	Timestamp   time.Time `json:"timestamp"`
}

// RankedFromPair строит RankedPair из записи сканера
func RankedFromPair(p *Pair) RankedPair {
	return RankedPair{
		PairID:      p.ID,
		Pair1:       p.Pair1,
		Pair2:       p.Pair2,
		Rank:        p.Rank,
		Correlation: p.Correlation,
		Volatility1: p.Volatility1,
		Volatility2: p.Volatility2,
		Timestamp:   p.CreatedAt,
	}
}
