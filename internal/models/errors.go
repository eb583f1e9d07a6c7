package models

import "errors"

// Классы ошибок доменного уровня. Конкретные ошибки оборачиваются через
// fmt.Errorf("...: %w", ErrX) и классифицируются через errors.Is.
//
// Любая ошибка единицы работы (символ, пара, позиция) исключает её
// из текущего цикла и не прерывает родительский батч.
var (
	// ErrTransientRemote - сбой вызова биржи или БД после всех повторов
	ErrTransientRemote = errors.New("transient remote failure")

	// ErrDataQuality - мало свечей, константная цена, NaN, нулевой объём
	ErrDataQuality = errors.New("data quality")

	// ErrStatisticalUndefined - нулевая/NaN дисперсия, корреляция или p-value
	ErrStatisticalUndefined = errors.New("statistic undefined")

	// ErrDuplicateWrite - сигнал или позиция уже записаны
	ErrDuplicateWrite = errors.New("duplicate write")

	// ErrAdmissionRejected - недостаточно капитала или позиция уже открыта
	ErrAdmissionRejected = errors.New("admission rejected")
)

// ErrorClass возвращает метку класса ошибки для логов и метрик
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTransientRemote):
		return "transient_remote"
	case errors.Is(err, ErrDataQuality):
		return "data_quality"
	case errors.Is(err, ErrStatisticalUndefined):
		return "statistic_undefined"
	case errors.Is(err, ErrDuplicateWrite):
		return "duplicate"
	case errors.Is(err, ErrAdmissionRejected):
		return "admission_rejected"
	default:
		return "other"
	}
}
