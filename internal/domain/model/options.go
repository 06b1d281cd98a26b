package model

// Options — настраиваемые списки выбора формы.
// В БД сохраняется метка, а не позиция в списке.
type Options struct {
	FileTypes         []string
	Languages         []string
	Confidentialities []string
}

// carrierSlugs — URL-сегменты для списков по типу носителя,
// сопоставляются с FileTypes по позиции.
var carrierSlugs = []string{"text", "photo", "video", "audio", "other"}

// CarrierSlugs возвращает поддерживаемые URL-сегменты типов носителя.
func CarrierSlugs() []string {
	out := make([]string, len(carrierSlugs))
	copy(out, carrierSlugs)
	return out
}

// CarrierLabel возвращает метку типа носителя для URL-сегмента.
// Второе значение false, если сегмент неизвестен или список короче.
func (o Options) CarrierLabel(slug string) (string, bool) {
	for i, s := range carrierSlugs {
		if s == slug {
			if i < len(o.FileTypes) {
				return o.FileTypes[i], true
			}
			return "", false
		}
	}
	return "", false
}

// Contains проверяет, что label присутствует в списке.
func Contains(list []string, label string) bool {
	for _, v := range list {
		if v == label {
			return true
		}
	}
	return false
}
