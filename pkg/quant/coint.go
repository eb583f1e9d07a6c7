package quant

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ============================================================
// Тест коинтеграции Энгла-Грейнджера
// ============================================================
//
// 1. Регрессия y = a + b·x (OLS), остатки e.
// 2. ADF без константы по остаткам, число лагов выбирается по AIC
//    на общей выборке (maxlag = ceil(12·(n/100)^(1/4))).
// 3. p-value по поверхности МакКиннона (1994/2010) для двух переменных
//    с константой.

// CointResult - итог теста
type CointResult struct {
	TStat   float64 // ADF статистика остатков
	PValue  float64
	UsedLag int
	Alpha   float64 // константа коинтегрирующей регрессии
	Beta    float64 // hedge ratio
}

// Cointegration выполняет тест Энгла-Грейнджера для y по x
func Cointegration(y, x []float64) (CointResult, error) {
	if len(y) != len(x) {
		return CointResult{}, ErrLengthMismatch
	}
	if len(y) < 20 {
		return CointResult{}, fmt.Errorf("%w: %d observations", ErrInsufficientData, len(y))
	}
	if StdDev(x) == 0 || StdDev(y) == 0 {
		return CointResult{}, fmt.Errorf("%w: constant series", ErrUndefined)
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - (alpha + beta*x[i])
	}

	res := CointResult{Alpha: alpha, Beta: beta}

	// Идеальная подгонка: остатки нулевые, единичный корень отвергается
	if PopStdDev(resid) < 1e-12*math.Max(1, PopStdDev(y)) {
		res.TStat = math.Inf(-1)
		res.PValue = 0
		return res, nil
	}

	tstat, lag, err := ADF(resid, -1)
	if err != nil {
		return CointResult{}, err
	}
	res.TStat = tstat
	res.UsedLag = lag
	res.PValue = MacKinnonPValue(tstat)
	if !valid(res.PValue) {
		return CointResult{}, fmt.Errorf("%w: p-value", ErrUndefined)
	}
	return res, nil
}

// ADF - расширенный тест Дики-Фуллера без константы и тренда.
// maxlag < 0 включает значение по умолчанию и выбор лага по AIC;
// maxlag >= 0 фиксирует число лагов. Возвращает t-статистику при x[t-1].
func ADF(x []float64, maxlag int) (tstat float64, usedLag int, err error) {
	n := len(x)
	autolag := maxlag < 0
	if autolag {
		maxlag = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
		if limit := n/2 - 1; maxlag > limit {
			maxlag = limit
		}
	}
	if maxlag < 0 || n-1-maxlag < maxlag+2 {
		return 0, 0, fmt.Errorf("%w: %d observations for %d lags", ErrInsufficientData, n, maxlag)
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = x[i] - x[i-1]
	}

	usedLag = maxlag
	if autolag {
		// Все кандидаты оцениваются на одной выборке длиной len(diff)-maxlag
		best := math.Inf(1)
		for lag := 0; lag <= maxlag; lag++ {
			y, X := adfDesign(x, diff, maxlag, lag)
			fit, ferr := ols(y, X)
			if ferr != nil {
				continue
			}
			nobs := float64(len(y))
			aic := nobs*math.Log(fit.ssr/nobs) + 2*float64(lag+1)
			if aic < best {
				best = aic
				usedLag = lag
			}
		}
		if math.IsInf(best, 1) {
			return 0, 0, fmt.Errorf("%w: adf regression", ErrUndefined)
		}
	}

	y, X := adfDesign(x, diff, usedLag, usedLag)
	fit, err := ols(y, X)
	if err != nil {
		return 0, 0, err
	}
	return fit.tstat0, usedLag, nil
}

// adfDesign строит регрессию Δx_t = γ·x_{t-1} + Σ φ_i·Δx_{t-i}.
// trim - сколько первых разностей отбрасывается (общая выборка для AIC),
// lags - число лаговых разностей в матрице.
func adfDesign(x, diff []float64, trim, lags int) ([]float64, *mat.Dense) {
	nobs := len(diff) - trim
	y := make([]float64, nobs)
	X := mat.NewDense(nobs, lags+1, nil)
	for r := 0; r < nobs; r++ {
		t := trim + r // индекс в diff
		y[r] = diff[t]
		X.Set(r, 0, x[t])
		for i := 1; i <= lags; i++ {
			X.Set(r, i, diff[t-i])
		}
	}
	return y, X
}

type olsFit struct {
	coef   []float64
	ssr    float64
	tstat0 float64
}

// ols - МНК без константы с t-статистикой первого коэффициента
func ols(y []float64, X *mat.Dense) (olsFit, error) {
	n, k := X.Dims()
	if n <= k {
		return olsFit{}, fmt.Errorf("%w: %d rows for %d regressors", ErrInsufficientData, n, k)
	}

	var qr mat.QR
	qr.Factorize(X)
	var b mat.Dense
	if err := qr.SolveTo(&b, false, mat.NewVecDense(n, y)); err != nil {
		return olsFit{}, fmt.Errorf("%w: %v", ErrUndefined, err)
	}

	fit := olsFit{coef: make([]float64, k)}
	for i := 0; i < k; i++ {
		fit.coef[i] = b.At(i, 0)
	}
	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += X.At(r, i) * fit.coef[i]
		}
		e := y[r] - pred
		fit.ssr += e * e
	}

	var xtx, inv mat.Dense
	xtx.Mul(X.T(), X)
	if err := inv.Inverse(&xtx); err != nil {
		return olsFit{}, fmt.Errorf("%w: singular design matrix", ErrUndefined)
	}
	sigma2 := fit.ssr / float64(n-k)
	se := math.Sqrt(sigma2 * inv.At(0, 0))
	if se == 0 || !valid(se) {
		return olsFit{}, fmt.Errorf("%w: zero standard error", ErrUndefined)
	}
	fit.tstat0 = fit.coef[0] / se
	return fit, nil
}

// Коэффициенты поверхности МакКиннона для N=2, регрессия с константой
const (
	tauMax  = 0.92
	tauMin  = -18.86
	tauStar = -2.62
)

var (
	tauSmallP = []float64{2.92, 1.5012, 0.039796}
	tauLargeP = []float64{2.1945, 0.64695, -0.29198, -0.042377}
)

// MacKinnonPValue - асимптотическое p-value статистики теста Энгла-Грейнджера
// для двух рядов
func MacKinnonPValue(tstat float64) float64 {
	switch {
	case math.IsNaN(tstat):
		return math.NaN()
	case tstat > tauMax:
		return 1
	case tstat < tauMin:
		return 0
	}

	coef := tauLargeP
	if tstat <= tauStar {
		coef = tauSmallP
	}

	var poly, pow float64 = 0, 1
	for _, c := range coef {
		poly += c * pow
		pow *= tstat
	}
	return distuv.UnitNormal.CDF(poly)
}
