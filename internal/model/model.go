// Package model содержит доменные сущности магазина сюрприз-боксов.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category описывает категорию сюрприз-бокса.
type Category string

const (
	CategoryHardware     Category = "Hardware"
	CategorySoftware     Category = "Software"
	CategoryBooks        Category = "Books"
	CategoryGadgets      Category = "Gadgets"
	CategoryApparel      Category = "Apparel"
	CategoryProductivity Category = "Productivity"
)

// ParseCategory возвращает категорию по строковому значению и признак её корректности.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryHardware, CategorySoftware, CategoryBooks,
		CategoryGadgets, CategoryApparel, CategoryProductivity:
		return Category(s), true
	}
	return "", false
}

// SurpriseBox представляет товар каталога: коробку с неизвестным содержимым.
type SurpriseBox struct {
	ID                  uuid.UUID
	Name                string
	Tagline             string
	Description         string
	Price               decimal.Decimal
	ImageURL            string
	Category            Category
	ContentsDescription string
	Stock               int32
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// BoxFilter задаёт условия выборки каталога. Все условия объединяются через AND.
type BoxFilter struct {
	// Category — точное совпадение категории, nil — без фильтра.
	Category *Category
	// Search — подстрока без учёта регистра в name, tagline или description.
	Search string
	// ActiveOnly ограничивает выборку активными товарами.
	ActiveOnly bool
}

// BoxUpdate описывает частичное обновление товара: nil-поля не изменяются.
type BoxUpdate struct {
	Name                *string
	Tagline             *string
	Description         *string
	Price               *decimal.Decimal
	ImageURL            *string
	Category            *Category
	ContentsDescription *string
	Stock               *int32
	IsActive            *bool
}

// Empty сообщает, что обновление не содержит ни одного поля.
func (u BoxUpdate) Empty() bool {
	return u.Name == nil && u.Tagline == nil && u.Description == nil &&
		u.Price == nil && u.ImageURL == nil && u.Category == nil &&
		u.ContentsDescription == nil && u.Stock == nil && u.IsActive == nil
}

// User представляет зарегистрированного покупателя.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// ParseOrderStatus возвращает статус заказа по строковому значению и признак его корректности.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

// Order описывает заказ покупателя. UserID равен nil для гостевого заказа.
type Order struct {
	ID              uuid.UUID
	UserID          *uuid.UUID
	Status          OrderStatus
	TotalAmount     decimal.Decimal
	ShippingAddress string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem описывает позицию заказа с зафиксированной ценой на момент покупки.
type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	BoxID           uuid.UUID
	Quantity        int32
	PriceAtPurchase decimal.Decimal
	CreatedAt       time.Time
}
