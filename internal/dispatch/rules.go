package dispatch

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"dispatch-service/internal/model"
)

// contractorActionRule notifies the claimant when a contractor accepts, and
// the claimant plus the previously assigned contractor when one cancels.
func (e *Engine) contractorActionRule(ctx context.Context, since time.Time) error {
	rows, err := e.reservations.ListByActionCodes(ctx, []string{
		model.ActionContractorAccept,
		model.ActionContractorCancel,
	}, since)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := e.notifyContractorAction(ctx, row); err != nil {
			e.skipCandidate("contractor-accept-cancel", row.ID, err)
		}
	}
	return nil
}

func (e *Engine) notifyContractorAction(ctx context.Context, row model.ReservationAssignment) error {
	accepted := row.ActionCode == model.ActionContractorAccept

	ntype := model.NotificationContractorCancelled
	title := "Contractor cancelled"
	body := fmt.Sprintf("The contractor assigned to reservation %d has cancelled the trip.", row.ReservationID)
	if accepted {
		ntype = model.NotificationContractorAccepted
		title = "Contractor assigned"
		body = fmt.Sprintf("A contractor has accepted reservation %d.", row.ReservationID)
	}

	if row.ClaimantID != nil {
		if err := e.emit(ctx, &model.NotificationRecord{
			Type:          ntype,
			ReferenceKey:  assignmentKey(row.ID),
			RecipientID:   *row.ClaimantID,
			RecipientType: model.RecipientClaimant,
			ReservationID: row.ReservationID,
			AssignmentID:  row.ID,
			Title:         title,
			Body:          body,
			Payload:       actionPayload(row),
		}); err != nil {
			return err
		}
	}

	if !accepted && row.PreviousContractorID != nil {
		if err := e.emit(ctx, &model.NotificationRecord{
			Type:          ntype,
			ReferenceKey:  assignmentKey(row.ID),
			RecipientID:   *row.PreviousContractorID,
			RecipientType: model.RecipientContractor,
			ReservationID: row.ReservationID,
			AssignmentID:  row.ID,
			Title:         title,
			Body:          fmt.Sprintf("Reservation %d you were assigned to has been released.", row.ReservationID),
			Payload:       actionPayload(row),
		}); err != nil {
			return err
		}
	}
	return nil
}

// claimantActionRule mirrors the contractor rule for the claimant side: the
// assigned contractor hears about claimant accepts and cancels.
func (e *Engine) claimantActionRule(ctx context.Context, since time.Time) error {
	rows, err := e.reservations.ListByActionCodes(ctx, []string{
		model.ActionClaimantAccept,
		model.ActionClaimantCancel,
	}, since)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if row.ContractorID == nil {
			continue
		}

		ntype := model.NotificationClaimantCancelled
		title := "Claimant cancelled"
		body := fmt.Sprintf("The claimant on reservation %d has cancelled.", row.ReservationID)
		if row.ActionCode == model.ActionClaimantAccept {
			ntype = model.NotificationClaimantAccepted
			title = "Claimant confirmed"
			body = fmt.Sprintf("The claimant on reservation %d has confirmed the trip.", row.ReservationID)
		}

		if err := e.emit(ctx, &model.NotificationRecord{
			Type:          ntype,
			ReferenceKey:  assignmentKey(row.ID),
			RecipientID:   *row.ContractorID,
			RecipientType: model.RecipientContractor,
			ReservationID: row.ReservationID,
			AssignmentID:  row.ID,
			Title:         title,
			Body:          body,
			Payload:       actionPayload(row),
		}); err != nil {
			e.skipCandidate("claimant-accept-cancel", row.ID, err)
		}
	}
	return nil
}

// assignmentCreatedRule fans a new job out to every contractor holding a
// registered push token.
func (e *Engine) assignmentCreatedRule(ctx context.Context, since time.Time) error {
	rows, err := e.reservations.ListByActionCodes(ctx, []string{model.ActionAssignmentCreated}, since)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	devices, err := e.notifications.DistinctRecipientsWithPushTokens(ctx, model.RecipientContractor)
	if err != nil {
		return err
	}

	for _, row := range rows {
		for _, device := range devices {
			if err := e.emit(ctx, &model.NotificationRecord{
				Type:          model.NotificationAssignmentCreated,
				ReferenceKey:  assignmentKey(row.ID),
				RecipientID:   device.UserID,
				RecipientType: device.RecipientType,
				ReservationID: row.ReservationID,
				AssignmentID:  row.ID,
				Title:         "New job available",
				Body:          fmt.Sprintf("A new job for reservation %d is available for pickup at %s.", row.ReservationID, row.PickupAddress),
				Payload:       actionPayload(row),
				PushToken:     device.PushToken,
			}); err != nil {
				e.skipCandidate("assignment-created", row.ID, err)
			}
		}
	}
	return nil
}

// needAttentionRule flags assignments whose contractor search has exhausted
// its candidates so dispatch staff steps in.
func (e *Engine) needAttentionRule(ctx context.Context, since time.Time) error {
	rows, err := e.reservations.ListByActionCodes(ctx, []string{model.ActionSearchExhausted}, since)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	staff, err := e.notifications.DistinctRecipientsWithPushTokens(ctx, model.RecipientDispatcher, model.RecipientWebUser)
	if err != nil {
		return err
	}

	for _, row := range rows {
		for _, device := range staff {
			if err := e.emit(ctx, &model.NotificationRecord{
				Type:          model.NotificationNeedAttention,
				ReferenceKey:  reservationKey(row.ReservationID),
				RecipientID:   device.UserID,
				RecipientType: device.RecipientType,
				ReservationID: row.ReservationID,
				AssignmentID:  row.ID,
				Title:         "Assignment needs attention",
				Body:          fmt.Sprintf("No contractor could be found for reservation %d.", row.ReservationID),
				Payload:       actionPayload(row),
				PushToken:     device.PushToken,
			}); err != nil {
				e.skipCandidate("contractor-not-found", row.ID, err)
			}
		}
	}
	return nil
}

// noDataFoundRule is the escalation re-check: when the oldest exhausted
// search is still unresolved past the lookback window, dispatch staff gets a
// single stronger nudge for it.
func (e *Engine) noDataFoundRule(ctx context.Context, since time.Time) error {
	row, err := e.reservations.OldestSearchExhausted(ctx, since)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}

	staff, err := e.notifications.DistinctRecipientsWithPushTokens(ctx, model.RecipientDispatcher)
	if err != nil {
		return err
	}

	for _, device := range staff {
		if err := e.emit(ctx, &model.NotificationRecord{
			Type:          model.NotificationNoDataFound,
			ReferenceKey:  reservationKey(row.ReservationID),
			RecipientID:   device.UserID,
			RecipientType: device.RecipientType,
			ReservationID: row.ReservationID,
			AssignmentID:  row.ID,
			Title:         "Still no contractor found",
			Body:          fmt.Sprintf("Reservation %d has had no contractor for over %s.", row.ReservationID, e.cfg.Lookback),
			Payload:       actionPayload(*row),
			PushToken:     device.PushToken,
		}); err != nil {
			e.skipCandidate("no-data-found", row.ID, err)
		}
	}
	return nil
}

func assignmentKey(assignmentID int64) string {
	return fmt.Sprintf("assignment:%d", assignmentID)
}

func reservationKey(reservationID int64) string {
	return fmt.Sprintf("reservation:%d", reservationID)
}

func actionPayload(row model.ReservationAssignment) datatypes.JSONMap {
	payload := datatypes.JSONMap{
		"reservation_id": row.ReservationID,
		"assignment_id":  row.ID,
		"action_code":    row.ActionCode,
	}
	if row.PickupAddress != "" {
		payload["pickup_address"] = row.PickupAddress
	}
	if row.DropoffAddress != "" {
		payload["dropoff_address"] = row.DropoffAddress
	}
	return payload
}
