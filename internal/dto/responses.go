package dto

// ErrorResponse — стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse — стандартный ответ об успехе с полезной нагрузкой.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BalanceResponse — балансы пользователя в копейках.
type BalanceResponse struct {
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
}

// UnreadCountResponse — число непрочитанных уведомлений.
type UnreadCountResponse struct {
	Count int `json:"count"`
}
