package models

// Action-kind enums for the append-only audit tables. The three-letter codes
// match the upstream storefront exports, so they are part of the data
// contract and must not be renamed.

type ResourceActionType string

const (
	ResourceActionCreate       ResourceActionType = "CRT"
	ResourceActionUpdateFields ResourceActionType = "UPF"
	ResourceActionSetCost      ResourceActionType = "STC"
	ResourceActionSetAmount    ResourceActionType = "STA"
	ResourceActionChangeAmount ResourceActionType = "CMT"
	ResourceActionVerifyCost   ResourceActionType = "VYC"
)

type SpecificationActionType string

const (
	SpecificationActionCreate         SpecificationActionType = "CRT"
	SpecificationActionDeactivate     SpecificationActionType = "DCT"
	SpecificationActionActivate       SpecificationActionType = "ACT"
	SpecificationActionSetPrice       SpecificationActionType = "STP"
	SpecificationActionSetAmount      SpecificationActionType = "STA"
	SpecificationActionUpdateFields   SpecificationActionType = "UPF"
	SpecificationActionSetCoefficient SpecificationActionType = "SCT"
	SpecificationActionSetCategory    SpecificationActionType = "SCY"
	SpecificationActionBuildSet       SpecificationActionType = "BLS"
)

type OrderActionType string

const (
	OrderActionCreate                     OrderActionType = "CRT"
	OrderActionConfirm                    OrderActionType = "CFM"
	OrderActionCancel                     OrderActionType = "CNL"
	OrderActionActivate                   OrderActionType = "ACT"
	OrderActionDeactivate                 OrderActionType = "DCT"
	OrderActionAssembling                 OrderActionType = "ASS"
	OrderActionPreparing                  OrderActionType = "PRP"
	OrderActionArchivation                OrderActionType = "ARC"
	OrderActionAssembleSpecification      OrderActionType = "ASP"
	OrderActionDisassembleSpecification   OrderActionType = "DSS"
)

type OrderStatus string

const (
	OrderStatusInactive   OrderStatus = "INC"
	OrderStatusActive     OrderStatus = "ACT"
	OrderStatusAssembling OrderStatus = "ASS"
	OrderStatusReady      OrderStatus = "RDY"
	OrderStatusArchived   OrderStatus = "ARC"
	OrderStatusConfirmed  OrderStatus = "CNF"
	OrderStatusCanceled   OrderStatus = "CND"
)

// Transition legality. The state machine itself lives in
// workflow/orderWorkflow.go; these predicates keep the table in one place.

func (s OrderStatus) CanActivate() bool {
	return s == OrderStatusInactive
}

func (s OrderStatus) CanDeactivate() bool {
	switch s {
	case OrderStatusActive, OrderStatusAssembling, OrderStatusReady:
		return true
	}
	return false
}

func (s OrderStatus) CanAssemble() bool {
	return s == OrderStatusActive || s == OrderStatusAssembling
}

func (s OrderStatus) CanDisassemble() bool {
	return s == OrderStatusReady || s == OrderStatusAssembling
}

func (s OrderStatus) CanConfirm() bool {
	return s == OrderStatusReady
}

// Cancel is allowed from any non-terminal state; active-ish orders are
// deactivated first so their reservations are released.
func (s OrderStatus) CanCancel() bool {
	switch s {
	case OrderStatusCanceled, OrderStatusArchived, OrderStatusConfirmed:
		return false
	}
	return true
}

func (s OrderStatus) CanArchive() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCanceled
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCanceled, OrderStatusArchived, OrderStatusConfirmed:
		return true
	}
	return false
}

// NotificationKind is the storefront payload field name carrying the change.
type NotificationKind string

const (
	NotificationPrice     NotificationKind = "price"
	NotificationPrimeCost NotificationKind = "primeCost"
	NotificationShip      NotificationKind = "ship"
	NotificationCancel    NotificationKind = "cancel"
)

type NotificationStatus string

const (
	NotificationStatusPending    NotificationStatus = "PENDING"
	NotificationStatusProcessing NotificationStatus = "PROCESSING"
	NotificationStatusSent       NotificationStatus = "SENT"
	NotificationStatusFailed     NotificationStatus = "FAILED"
	NotificationStatusDead       NotificationStatus = "DEAD"
)
