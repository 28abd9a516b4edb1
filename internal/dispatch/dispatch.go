// ABOUTME: Executes extracted reservation commands against the backend.
// ABOUTME: Produces either a feedback prompt for the assistant or a direct user reply.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mesabot/mesa-gateway/internal/apiqueue"
	"github.com/mesabot/mesa-gateway/internal/command"
	"github.com/mesabot/mesa-gateway/internal/riservi"
	"github.com/mesabot/mesa-gateway/internal/temporal"
)

// WaitMessage is sent when a second reservation arrives while one is in flight.
const WaitMessage = "Ya estamos procesando una reserva. Espera la confirmación antes de solicitar otra."

// MissingIDMessage is fed back when a mutate command carries no booking id.
const MissingIDMessage = "Falta el identificador de la reserva. Por favor, pedile al usuario el número de reserva."

// createQueueName serializes reservation creation across all conversations.
const createQueueName = "createReservation"

// Backend is the slice of the reservation API the dispatcher needs.
type Backend interface {
	CheckAvailability(ctx context.Context, date string, partySize int) riservi.Result
	CreateReservation(ctx context.Context, fields map[string]any) riservi.Result
	UpdateReservation(ctx context.Context, id, date string, partySize int) riservi.Result
	CancelReservation(ctx context.Context, id string) riservi.Result
	ConfirmReservation(ctx context.Context, id string) riservi.Result
}

// ReservationGuard tracks the per-conversation reservation-in-progress flag.
type ReservationGuard interface {
	BeginReservation(conversationID string) bool
	EndReservation(conversationID string)
}

// Auditor records completed reservation operations. May be nil.
type Auditor interface {
	RecordReservation(ctx context.Context, conversationID, reservationID, kind, date string, partySize int) error
}

// Outcome is the result of dispatching one command. Exactly one of Reply and
// Feedback is set: Reply goes straight to the user and ends the cycle,
// Feedback goes back to the assistant for another round.
type Outcome struct {
	Reply    string
	Feedback string
	Nudge    string
}

func reply(msg string) Outcome { return Outcome{Reply: msg} }

func feedback(prompt, nudge string) Outcome {
	return Outcome{Feedback: prompt, Nudge: nudge}
}

// Dispatcher runs reservation commands. It is safe for concurrent use; the
// conversation serializer already guarantees one command at a time per
// conversation, and the create queue guards the backend across conversations.
type Dispatcher struct {
	backend    Backend
	guard      ReservationGuard
	queues     *apiqueue.Queues
	normalizer *temporal.Normalizer
	auditor    Auditor
	logger     *slog.Logger
}

// New creates a Dispatcher. auditor may be nil.
func New(backend Backend, guard ReservationGuard, queues *apiqueue.Queues, normalizer *temporal.Normalizer, auditor Auditor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		backend:    backend,
		guard:      guard,
		queues:     queues,
		normalizer: normalizer,
		auditor:    auditor,
		logger:     logger.With("component", "dispatch"),
	}
}

// Dispatch executes one command for a conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID string, cmd *command.Command) Outcome {
	d.logger.Info("dispatching command", "conversation_id", conversationID, "kind", cmd.Kind)

	switch cmd.Kind {
	case command.KindAvailabilityCheck:
		return d.checkAvailability(ctx, cmd)
	case command.KindCreateReservation:
		return d.createReservation(ctx, conversationID, cmd)
	case command.KindModifyReservation:
		return d.modifyReservation(ctx, conversationID, cmd)
	case command.KindCancelReservation:
		return d.cancelReservation(ctx, conversationID, cmd)
	case command.KindConfirmReservation:
		return d.confirmReservation(ctx, conversationID, cmd)
	default:
		d.logger.Warn("unrecognized command kind", "kind", cmd.Kind)
		return feedback(fmt.Sprintf("Comando no reconocido: %s", cmd.Kind), "")
	}
}

func (d *Dispatcher) checkAvailability(ctx context.Context, cmd *command.Command) Outcome {
	date, err := d.normalizer.Normalize(cmd.Date())
	if err != nil {
		return d.rejectDate(err)
	}

	res := d.backend.CheckAvailability(ctx, date.String(), cmd.PartySize())
	if msg := res.ErrText(); msg != "" {
		return feedback(fmt.Sprintf("Error al consultar disponibilidad: %s. ¿Deseas volver a intentar la consulta?", msg), "")
	}

	requested := date.Time().Format("15:04")
	var alternatives []string
	for _, slot := range res.AvailabilitySlots() {
		if !slot.Available {
			continue
		}
		if slot.Time == requested || slot.Time == date.String() {
			return feedback(fmt.Sprintf(
				"Disponibilidad confirmada para %s y %d personas. Por favor, procede con la reserva o confirma los datos restantes con el usuario.",
				date, cmd.PartySize()), "")
		}
		alternatives = append(alternatives, slot.Time)
	}

	if len(alternatives) > 0 {
		return feedback(
			fmt.Sprintf("No hay disponibilidad exacta para %s. Horarios alternativos disponibles: %s", date, strings.Join(alternatives, ", ")),
			"Por favor, informa al usuario sobre las alternativas.")
	}
	return feedback(
		"No hay horarios disponibles para la fecha y cantidad de personas solicitadas.",
		"Por favor, informa al usuario que no hay disponibilidad.")
}

func (d *Dispatcher) createReservation(ctx context.Context, conversationID string, cmd *command.Command) Outcome {
	if !d.guard.BeginReservation(conversationID) {
		d.logger.Info("reservation already in flight", "conversation_id", conversationID)
		return reply(WaitMessage)
	}
	defer d.guard.EndReservation(conversationID)

	date, err := d.normalizer.Normalize(cmd.Date())
	if err != nil {
		return d.rejectDate(err)
	}
	cmd.SetDate(date.String())

	var res riservi.Result
	if err := d.queues.Do(ctx, createQueueName, func(ctx context.Context) {
		res = d.backend.CreateReservation(ctx, cmd.Fields)
	}); err != nil {
		return feedback(fmt.Sprintf("Error al crear la reserva: %v. ¿Deseas volver a intentar la solicitud?", err), "")
	}

	if msg := res.ErrText(); msg != "" {
		return feedback(fmt.Sprintf("La API devolvió un error al intentar crear la reserva: %s", msg), "")
	}

	id := res.ReservationID()
	if id == "" {
		return feedback(fmt.Sprintf("No se recibió confirmación de la reserva. Respuesta API: %s", jsonText(res)), "")
	}
	d.audit(ctx, conversationID, id, "create", date.String(), cmd.PartySize())
	return feedback(fmt.Sprintf("reserva confirmada con ID %s", id), "")
}

func (d *Dispatcher) modifyReservation(ctx context.Context, conversationID string, cmd *command.Command) Outcome {
	id := cmd.ReservationID()
	if id == "" {
		return feedback(MissingIDMessage, "")
	}
	date, err := d.normalizer.Normalize(cmd.Date())
	if err != nil {
		return d.rejectDate(err)
	}

	res := d.backend.UpdateReservation(ctx, id, date.String(), cmd.PartySize())
	if msg := res.ErrText(); msg != "" {
		return feedback(fmt.Sprintf("La API devolvió un error al intentar modificar la reserva: %s", msg), "")
	}
	d.audit(ctx, conversationID, id, "modify", date.String(), cmd.PartySize())
	return feedback(jsonText(res), "")
}

func (d *Dispatcher) cancelReservation(ctx context.Context, conversationID string, cmd *command.Command) Outcome {
	id := cmd.ReservationID()
	if id == "" {
		return feedback(MissingIDMessage, "")
	}
	res := d.backend.CancelReservation(ctx, id)
	if msg := res.ErrText(); msg != "" {
		return feedback(fmt.Sprintf("La API devolvió un error al intentar cancelar la reserva: %s", msg), "")
	}
	d.audit(ctx, conversationID, id, "cancel", "", 0)
	return feedback(jsonText(res), "")
}

func (d *Dispatcher) confirmReservation(ctx context.Context, conversationID string, cmd *command.Command) Outcome {
	id := cmd.ReservationID()
	if id == "" {
		return feedback(MissingIDMessage, "")
	}
	res := d.backend.ConfirmReservation(ctx, id)
	if msg := res.ErrText(); msg != "" {
		return feedback(fmt.Sprintf("La API devolvió un error al intentar confirmar la reserva: %s", msg), "")
	}
	d.audit(ctx, conversationID, id, "confirm", "", 0)
	return feedback(jsonText(res), "")
}

// rejectDate turns a date validation failure into a direct user reply.
func (d *Dispatcher) rejectDate(err error) Outcome {
	var verr *temporal.ValidationError
	if errors.As(err, &verr) {
		return reply(verr.Message)
	}
	return reply(temporal.RejectionMessage)
}

func (d *Dispatcher) audit(ctx context.Context, conversationID, reservationID, kind, date string, partySize int) {
	if d.auditor == nil {
		return
	}
	if err := d.auditor.RecordReservation(ctx, conversationID, reservationID, kind, date, partySize); err != nil {
		d.logger.Warn("failed to record reservation", "reservation_id", reservationID, "error", err)
	}
}

func jsonText(res riservi.Result) string {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(res))
	}
	return string(data)
}
