package models

// Principal проверенная внешним провайдером идентичность пользователя.
type Principal struct {
	SubjectID   string
	Email       string
	DisplayName string
}
