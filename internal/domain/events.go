package domain

import "strconv"

// Event is a best-effort real-time notification. Topic scopes the audience:
// every viewer of a showtime, of a cinema menu, of one order, or one account.
type Event interface {
	Topic() string
	Name() string
}

func ShowtimeTopic(id int64) string { return "showtime:" + strconv.FormatInt(id, 10) }
func CinemaTopic(id int64) string { return "cinema:" + strconv.FormatInt(id, 10) }
func AccountTopic(id int64) string { return "account:" + strconv.FormatInt(id, 10) }
func OrderTopic(reservationID string) string { return "order:" + reservationID }

type SeatChanged struct {
	ShowtimeID    int64  `json:"showtime_id"`
	SeatID        int64  `json:"seat_id"`
	Taken         bool   `json:"taken"`
	ReservationID string `json:"reservation_id,omitempty"`
	Status        Status `json:"status,omitempty"`
}

func (e SeatChanged) Topic() string { return ShowtimeTopic(e.ShowtimeID) }
func (e SeatChanged) Name() string { return "seat.changed" }

type View string

const (
	ViewSeats    View = "seats"
	ViewMenu     View = "menu"
	ViewVariants View = "variants"
)

// RefreshRequested tells a single caller that its cached layout is stale.
type RefreshRequested struct {
	AccountID int64  `json:"account_id"`
	View      View   `json:"view"`
	TargetID  *int64 `json:"target_id,omitempty"`
	ItemID    *int64 `json:"item_id,omitempty"`
}

func (e RefreshRequested) Topic() string { return AccountTopic(e.AccountID) }
func (e RefreshRequested) Name() string { return "refresh.requested" }

type ItemChanged struct {
	ReservationID string `json:"reservation_id"`
	ItemID        int64  `json:"item_id"`
}

func (e ItemChanged) Topic() string { return OrderTopic(e.ReservationID) }
func (e ItemChanged) Name() string { return "item.changed" }

type CartQuantityChanged struct {
	ReservationID string `json:"reservation_id"`
	VariantID     int64  `json:"variant_id"`
	Quantity      int    `json:"quantity"`
}

func (e CartQuantityChanged) Topic() string { return OrderTopic(e.ReservationID) }
func (e CartQuantityChanged) Name() string { return "cart.quantity_changed" }

type StockChanged struct {
	CinemaID  int64 `json:"cinema_id"`
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

func (e StockChanged) Topic() string { return CinemaTopic(e.CinemaID) }
func (e StockChanged) Name() string { return "stock.changed" }
