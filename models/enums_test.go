package models_test

import (
	"testing"

	"github.com/mmdatafocus/cella_backend/models"
)

func TestOrderStatusTransitionTable(t *testing.T) {
	all := []models.OrderStatus{
		models.OrderStatusInactive,
		models.OrderStatusActive,
		models.OrderStatusAssembling,
		models.OrderStatusReady,
		models.OrderStatusArchived,
		models.OrderStatusConfirmed,
		models.OrderStatusCanceled,
	}

	type row struct {
		activate, deactivate, assemble, disassemble, confirm, cancel, archive, terminal bool
	}
	want := map[models.OrderStatus]row{
		models.OrderStatusInactive:   {activate: true, cancel: true},
		models.OrderStatusActive:     {deactivate: true, assemble: true, cancel: true},
		models.OrderStatusAssembling: {deactivate: true, assemble: true, disassemble: true, cancel: true},
		models.OrderStatusReady:      {deactivate: true, disassemble: true, confirm: true, cancel: true},
		models.OrderStatusConfirmed:  {archive: true, terminal: true},
		models.OrderStatusCanceled:   {archive: true, terminal: true},
		models.OrderStatusArchived:   {terminal: true},
	}

	for _, status := range all {
		w := want[status]
		if got := status.CanActivate(); got != w.activate {
			t.Errorf("%s CanActivate = %v, want %v", status, got, w.activate)
		}
		if got := status.CanDeactivate(); got != w.deactivate {
			t.Errorf("%s CanDeactivate = %v, want %v", status, got, w.deactivate)
		}
		if got := status.CanAssemble(); got != w.assemble {
			t.Errorf("%s CanAssemble = %v, want %v", status, got, w.assemble)
		}
		if got := status.CanDisassemble(); got != w.disassemble {
			t.Errorf("%s CanDisassemble = %v, want %v", status, got, w.disassemble)
		}
		if got := status.CanConfirm(); got != w.confirm {
			t.Errorf("%s CanConfirm = %v, want %v", status, got, w.confirm)
		}
		if got := status.CanCancel(); got != w.cancel {
			t.Errorf("%s CanCancel = %v, want %v", status, got, w.cancel)
		}
		if got := status.CanArchive(); got != w.archive {
			t.Errorf("%s CanArchive = %v, want %v", status, got, w.archive)
		}
		if got := status.IsTerminal(); got != w.terminal {
			t.Errorf("%s IsTerminal = %v, want %v", status, got, w.terminal)
		}
	}
}

func TestTerminalStatusesRejectEverything(t *testing.T) {
	for _, status := range []models.OrderStatus{models.OrderStatusArchived} {
		if status.CanActivate() || status.CanDeactivate() || status.CanAssemble() ||
			status.CanDisassemble() || status.CanConfirm() || status.CanCancel() || status.CanArchive() {
			t.Errorf("archived order must reject every transition, status=%s", status)
		}
	}
}
