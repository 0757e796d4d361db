// Package service реализует бизнес-логику магазина сюрприз-боксов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surprisebox-shop/internal/model"
	"github.com/mmeshcher/surprisebox-shop/internal/repository"
	"github.com/mmeshcher/surprisebox-shop/internal/validation"
)

// ErrValidation помечает ошибки некорректных входных данных, обнаруженные до записи.
var (
	ErrValidation = errors.New("validation error")
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	// Не различает отсутствие пользователя и неверный пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateBox(ctx context.Context, box model.SurpriseBox) (*model.SurpriseBox, error)
	GetBoxes(ctx context.Context, filter model.BoxFilter) ([]model.SurpriseBox, error)
	GetBoxByID(ctx context.Context, id uuid.UUID) (*model.SurpriseBox, error)
	UpdateBox(ctx context.Context, id uuid.UUID, upd model.BoxUpdate) (*model.SurpriseBox, error)
	DeleteBox(ctx context.Context, id uuid.UUID) (bool, error)
	CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	PlaceOrder(ctx context.Context, userID *uuid.UUID, shippingAddress string, total decimal.Decimal, lines []repository.OrderLine) (*model.Order, error)
	GetOrders(ctx context.Context) ([]model.Order, error)
	GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
}

// Service содержит бизнес-логику магазина сюрприз-боксов.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateBox проверяет и сохраняет новый товар каталога.
func (s *Service) CreateBox(ctx context.Context, box model.SurpriseBox) (*model.SurpriseBox, error) {
	if err := validateBox(box); err != nil {
		return nil, err
	}
	return s.repo.CreateBox(ctx, box)
}

func validateBox(box model.SurpriseBox) error {
	switch {
	case strings.TrimSpace(box.Name) == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case strings.TrimSpace(box.Tagline) == "":
		return fmt.Errorf("%w: tagline is required", ErrValidation)
	case strings.TrimSpace(box.Description) == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case strings.TrimSpace(box.ImageURL) == "":
		return fmt.Errorf("%w: image url is required", ErrValidation)
	case strings.TrimSpace(box.ContentsDescription) == "":
		return fmt.Errorf("%w: contents description is required", ErrValidation)
	case !box.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	case box.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}

	if _, ok := model.ParseCategory(string(box.Category)); !ok {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, box.Category)
	}

	return nil
}

// GetBoxes возвращает товары каталога по фильтру.
func (s *Service) GetBoxes(ctx context.Context, filter model.BoxFilter) ([]model.SurpriseBox, error) {
	return s.repo.GetBoxes(ctx, filter)
}

// GetBoxByID возвращает товар по идентификатору.
func (s *Service) GetBoxByID(ctx context.Context, id uuid.UUID) (*model.SurpriseBox, error) {
	return s.repo.GetBoxByID(ctx, id)
}

// UpdateBox применяет частичное обновление товара.
// Обновление без единого поля отклоняется до обращения к хранилищу,
// чтобы не путать его с отсутствующим товаром.
func (s *Service) UpdateBox(ctx context.Context, id uuid.UUID, upd model.BoxUpdate) (*model.SurpriseBox, error) {
	if upd.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}
	if upd.Price != nil && !upd.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if upd.Stock != nil && *upd.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}

	return s.repo.UpdateBox(ctx, id, upd)
}

// DeleteBox удаляет товар и сообщает, была ли удалена строка.
func (s *Service) DeleteBox(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.DeleteBox(ctx, id)
}

// RegisterUser регистрирует нового покупателя.
func (s *Service) RegisterUser(ctx context.Context, email, password, firstName, lastName string) (*model.User, error) {
	switch {
	case !validation.IsValidEmail(email):
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	case len(password) < 8:
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	case strings.TrimSpace(firstName) == "":
		return nil, fmt.Errorf("%w: first name is required", ErrValidation)
	case strings.TrimSpace(lastName) == "":
		return nil, fmt.Errorf("%w: last name is required", ErrValidation)
	}

	hashed := hashPassword(email, password)
	return s.repo.CreateUser(ctx, email, hashed, firstName, lastName)
}

// LoginUser проверяет пару email/пароль и возвращает пользователя.
// Отсутствие пользователя и неверный пароль неразличимы для вызывающего.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// OrderItemInput описывает одну запрошенную позицию заказа.
type OrderItemInput struct {
	BoxID    uuid.UUID
	Quantity int32
}

// CreateOrderInput описывает запрос на размещение заказа.
// UserID равен nil для гостевого заказа.
type CreateOrderInput struct {
	UserID          *uuid.UUID
	ShippingAddress string
	Items           []OrderItemInput
}

// CreateOrder размещает заказ: проверяет наличие и остатки всех позиций,
// фиксирует цены на момент покупки, считает итог и атомарно сохраняет заказ
// со списанием остатков. Любая ошибка оставляет каталог и заказы нетронутыми.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return nil, fmt.Errorf("%w: shipping address is required", ErrValidation)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
	}

	lines := make([]repository.OrderLine, 0, len(in.Items))
	total := decimal.Zero

	for _, it := range in.Items {
		box, err := s.repo.GetBoxByID(ctx, it.BoxID)
		if err != nil {
			return nil, err
		}
		if box.Stock < it.Quantity {
			return nil, fmt.Errorf("%w: %s", repository.ErrInsufficientStock, box.ID)
		}

		total = total.Add(box.Price.Mul(decimal.NewFromInt32(it.Quantity)))
		lines = append(lines, repository.OrderLine{
			BoxID:           box.ID,
			Quantity:        it.Quantity,
			PriceAtPurchase: box.Price,
		})
	}

	// Проверка остатков выше — только для раннего ответа: к моменту списания
	// остаток мог измениться, поэтому решает условное списание внутри транзакции.
	return s.repo.PlaceOrder(ctx, in.UserID, in.ShippingAddress, total, lines)
}

// GetOrders возвращает все заказы.
func (s *Service) GetOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetOrders(ctx)
}

// GetOrdersByUser возвращает заказы указанного пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// UpdateOrderStatus устанавливает новый статус заказа.
func (s *Service) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	if _, ok := model.ParseOrderStatus(string(status)); !ok {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}
	return s.repo.UpdateOrderStatus(ctx, id, status)
}
