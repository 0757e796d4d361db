package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surprisebox-shop/internal/model"
	"github.com/mmeshcher/surprisebox-shop/internal/repository"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@example.com", "pass")
	b := hashPassword("user@example.com", "pass")
	c := hashPassword("user@example.com", "other")
	d := hashPassword("other@example.com", "pass")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
	if string(a) == string(d) {
		t.Fatalf("different emails must produce different hashes")
	}
}

type stubRepo struct {
	boxes map[uuid.UUID]model.SurpriseBox

	createBoxResp *model.SurpriseBox
	createBoxErr  error

	boxesResp []model.SurpriseBox
	boxesErr  error

	updateBoxResp *model.SurpriseBox
	updateBoxErr  error

	deleteBoxResp bool
	deleteBoxErr  error

	createUserResp *model.User
	createUserErr  error

	getUser    *model.User
	getUserErr error

	placeCalled  bool
	placedUserID *uuid.UUID
	placedTotal  decimal.Decimal
	placedLines  []repository.OrderLine
	placeErr     error

	orders    []model.Order
	ordersErr error

	updateStatusResp *model.Order
	updateStatusErr  error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateBox(ctx context.Context, box model.SurpriseBox) (*model.SurpriseBox, error) {
	return s.createBoxResp, s.createBoxErr
}

func (s *stubRepo) GetBoxes(ctx context.Context, filter model.BoxFilter) ([]model.SurpriseBox, error) {
	return s.boxesResp, s.boxesErr
}

func (s *stubRepo) GetBoxByID(ctx context.Context, id uuid.UUID) (*model.SurpriseBox, error) {
	if box, ok := s.boxes[id]; ok {
		return &box, nil
	}
	return nil, repository.ErrBoxNotFound
}

func (s *stubRepo) UpdateBox(ctx context.Context, id uuid.UUID, upd model.BoxUpdate) (*model.SurpriseBox, error) {
	return s.updateBoxResp, s.updateBoxErr
}

func (s *stubRepo) DeleteBox(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.deleteBoxResp, s.deleteBoxErr
}

func (s *stubRepo) CreateUser(ctx context.Context, email string, passwordHash []byte, firstName, lastName string) (*model.User, error) {
	return s.createUserResp, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.getUser == nil && s.getUserErr == nil {
		return nil, repository.ErrUserNotFound
	}
	return s.getUser, s.getUserErr
}

func (s *stubRepo) PlaceOrder(ctx context.Context, userID *uuid.UUID, shippingAddress string, total decimal.Decimal, lines []repository.OrderLine) (*model.Order, error) {
	s.placeCalled = true
	s.placedUserID = userID
	s.placedTotal = total
	s.placedLines = lines

	if s.placeErr != nil {
		return nil, s.placeErr
	}

	o := &model.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          model.OrderStatusPending,
		TotalAmount:     total,
		ShippingAddress: shippingAddress,
	}
	for _, line := range lines {
		o.Items = append(o.Items, model.OrderItem{
			ID:              uuid.New(),
			OrderID:         o.ID,
			BoxID:           line.BoxID,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.PriceAtPurchase,
		})
	}
	return o, nil
}

func (s *stubRepo) GetOrders(ctx context.Context) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	return s.updateStatusResp, s.updateStatusErr
}

func catalogBox(price string, stock int32) model.SurpriseBox {
	return model.SurpriseBox{
		ID:                  uuid.New(),
		Name:                "Mystery Box",
		Tagline:             "Something inside",
		Description:         "You never know",
		Price:               decimal.RequireFromString(price),
		ImageURL:            "https://example.com/box.png",
		Category:            model.CategoryHardware,
		ContentsDescription: "Secret hardware",
		Stock:               stock,
		IsActive:            true,
	}
}

func TestCreateOrder_ComputesTotalAndDecrement(t *testing.T) {
	box := catalogBox("29.99", 10)
	repo := &stubRepo{boxes: map[uuid.UUID]model.SurpriseBox{box.ID: box}}
	svc := NewService(repo)

	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ShippingAddress: "1 Main St",
		Items:           []OrderItemInput{{BoxID: box.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	if want := decimal.RequireFromString("59.98"); !order.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", order.TotalAmount, want)
	}
	if len(order.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(order.Items))
	}
	if !order.Items[0].PriceAtPurchase.Equal(box.Price) {
		t.Fatalf("price at purchase = %s, want %s", order.Items[0].PriceAtPurchase, box.Price)
	}
	if repo.placedLines[0].Quantity != 2 {
		t.Fatalf("decrement quantity = %d, want 2", repo.placedLines[0].Quantity)
	}
}

func TestCreateOrder_MultipleItems(t *testing.T) {
	boxA := catalogBox("29.99", 5)
	boxB := catalogBox("19.99", 5)
	repo := &stubRepo{boxes: map[uuid.UUID]model.SurpriseBox{boxA.ID: boxA, boxB.ID: boxB}}
	svc := NewService(repo)

	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ShippingAddress: "1 Main St",
		Items: []OrderItemInput{
			{BoxID: boxA.ID, Quantity: 2},
			{BoxID: boxB.ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	if want := decimal.RequireFromString("79.97"); !order.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", order.TotalAmount, want)
	}
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	box := catalogBox("29.99", 10)
	repo := &stubRepo{boxes: map[uuid.UUID]model.SurpriseBox{box.ID: box}}
	svc := NewService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ShippingAddress: "1 Main St",
		Items:           []OrderItemInput{{BoxID: box.ID, Quantity: 15}},
	})
	if !errors.Is(err, repository.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if repo.placeCalled {
		t.Fatalf("no order must be placed when stock is insufficient")
	}
}

func TestCreateOrder_UnknownBox(t *testing.T) {
	repo := &stubRepo{boxes: map[uuid.UUID]model.SurpriseBox{}}
	svc := NewService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ShippingAddress: "1 Main St",
		Items:           []OrderItemInput{{BoxID: uuid.New(), Quantity: 1}},
	})
	if !errors.Is(err, repository.ErrBoxNotFound) {
		t.Fatalf("expected ErrBoxNotFound, got %v", err)
	}
	if repo.placeCalled {
		t.Fatalf("no order must be placed for unknown box")
	}
}

func TestCreateOrder_GuestHasNoOwner(t *testing.T) {
	box := catalogBox("10.00", 3)
	repo := &stubRepo{boxes: map[uuid.UUID]model.SurpriseBox{box.ID: box}}
	svc := NewService(repo)

	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ShippingAddress: "1 Main St",
		Items:           []OrderItemInput{{BoxID: box.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.UserID != nil {
		t.Fatalf("guest order must have no owner, got %v", order.UserID)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	box := catalogBox("10.00", 3)
	repo := &stubRepo{boxes: map[uuid.UUID]model.SurpriseBox{box.ID: box}}
	svc := NewService(repo)

	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{
			name: "empty address",
			in: CreateOrderInput{
				ShippingAddress: "  ",
				Items:           []OrderItemInput{{BoxID: box.ID, Quantity: 1}},
			},
		},
		{
			name: "no items",
			in:   CreateOrderInput{ShippingAddress: "1 Main St"},
		},
		{
			name: "zero quantity",
			in: CreateOrderInput{
				ShippingAddress: "1 Main St",
				Items:           []OrderItemInput{{BoxID: box.ID, Quantity: 0}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if repo.placeCalled {
				t.Fatalf("no order must be placed on validation error")
			}
		})
	}
}

func TestCreateBox_Validation(t *testing.T) {
	svc := NewService(&stubRepo{})

	box := catalogBox("10.00", 3)
	box.Category = "Appliances"

	_, err := svc.CreateBox(context.Background(), box)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown category, got %v", err)
	}

	box = catalogBox("0.00", 3)
	_, err = svc.CreateBox(context.Background(), box)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for non-positive price, got %v", err)
	}
}

func TestUpdateBox_EmptyUpdateRejected(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.UpdateBox(context.Background(), uuid.New(), model.BoxUpdate{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty update, got %v", err)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrEmailExists}
	svc := NewService(repo)

	_, err := svc.RegisterUser(context.Background(), "user@example.com", "password1", "First", "Last")
	if !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestRegisterUser_ShortPassword(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.RegisterUser(context.Background(), "user@example.com", "short", "First", "Last")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLoginUser_WrongPassword(t *testing.T) {
	hashed := hashPassword("user@example.com", "correct-password")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           uuid.New(),
			Email:        "user@example.com",
			PasswordHash: hashed,
		},
	}
	svc := NewService(repo)

	_, err := svc.LoginUser(context.Background(), "user@example.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUser_UnknownUserIndistinguishable(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.LoginUser(context.Background(), "missing@example.com", "whatever1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.UpdateOrderStatus(context.Background(), uuid.New(), "Archived")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
