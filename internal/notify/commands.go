package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// commandCatalog lists every supported slash command and its one-line
// description, used by /menu and /ayuda.
var commandCatalog = []struct {
	Name string
	Desc string
}{
	{"estado", "Estado general del bot"},
	{"balance", "Balance de cuenta por exchange"},
	{"cartera", "Posiciones abiertas con P&L no realizado"},
	{"posiciones", "Estado de la máquina de salida por posición"},
	{"ganancias", "P&L realizado acumulado"},
	{"exposicion", "Exposición actual frente al límite"},
	{"ultimas", "Últimos eventos del bot"},
	{"logs", "Resumen de logs recientes"},
	{"log", "Detalle de un evento por ID"},
	{"config", "Consultar o fijar un valor de configuración"},
	{"uptime", "Tiempo en marcha del proceso"},
	{"menu", "Lista de comandos disponibles"},
	{"channels", "Gestionar canales de notificación"},
	{"pausar", "Pausar la apertura de nuevas posiciones"},
	{"reanudar", "Reanudar la apertura de nuevas posiciones"},
	{"informe_fiscal", "Generar el informe fiscal del año en curso"},
	{"refresh_commands", "Volver a registrar los comandos ante Telegram"},
	{"ayuda", "Mostrar esta ayuda"},
}

// dispatchCommand routes one parsed slash command to its handler and
// returns the HTML reply text (empty string suppresses a reply).
func (o *Orchestrator) dispatchCommand(ctx context.Context, chatID int64, cmd, args string) string {
	switch cmd {
	case "estado":
		return o.cmdEstado(ctx)
	case "balance":
		return o.cmdBalance(ctx)
	case "cartera":
		return o.cmdCartera(ctx)
	case "posiciones":
		return o.cmdPosiciones(ctx)
	case "ganancias":
		return o.cmdGanancias(ctx)
	case "exposicion":
		return o.cmdExposicion(ctx)
	case "ultimas":
		return o.cmdUltimas(ctx)
	case "logs":
		return o.cmdLogs(ctx)
	case "log":
		return o.cmdLog(ctx, args)
	case "config":
		return o.cmdConfig(ctx, chatID, args)
	case "uptime":
		return o.cmdUptime()
	case "menu", "ayuda", "start", "help":
		return o.cmdMenu()
	case "channels":
		return o.cmdChannels(ctx, chatID, args)
	case "pausar":
		return o.cmdPausar(chatID)
	case "reanudar":
		return o.cmdReanudar(chatID)
	case "informe_fiscal":
		return o.cmdInformeFiscal(ctx)
	case "refresh_commands":
		return o.cmdRefreshCommands(chatID)
	default:
		return fmt.Sprintf("Comando desconocido: /%s. Usa /menu para ver los disponibles.", cmd)
	}
}

func (o *Orchestrator) snapshot(ctx context.Context) (StatusSnapshot, bool) {
	o.mu.RLock()
	sp := o.status
	o.mu.RUnlock()
	if sp == nil {
		return StatusSnapshot{}, false
	}
	return sp.Status(ctx), true
}

func (o *Orchestrator) cmdEstado(ctx context.Context) string {
	snap, ok := o.snapshot(ctx)
	if !ok {
		return "El motor de trading aún no está disponible."
	}
	mode := "live"
	if snap.DryRun {
		mode = "dry-run"
	}
	kill := "no"
	if snap.KillSwitchActive {
		kill = "sí"
	}
	return fmt.Sprintf(
		"<b>Estado</b>\nModo: %s\nUptime: %s\nPosiciones abiertas: %d\nKill switch: %s",
		mode, snap.Uptime.Round(time.Second), len(snap.OpenLots), kill,
	)
}

func (o *Orchestrator) cmdBalance(ctx context.Context) string {
	snap, ok := o.snapshot(ctx)
	if !ok || len(snap.BalancesEur) == 0 {
		return "Sin datos de balance disponibles."
	}
	var b strings.Builder
	b.WriteString("<b>Balance</b>\n")
	for exch, bal := range snap.BalancesEur {
		fmt.Fprintf(&b, "%s: %s\n", exch, fmtEur(bal))
	}
	return b.String()
}

func (o *Orchestrator) cmdCartera(ctx context.Context) string {
	snap, ok := o.snapshot(ctx)
	if !ok || len(snap.OpenLots) == 0 {
		return "Sin posiciones abiertas."
	}
	var b strings.Builder
	b.WriteString("<b>Cartera</b>\n")
	for _, lot := range snap.OpenLots {
		fmt.Fprintf(&b, "%s (%s): %.8f @ %s → %s (%s)\n",
			lot.Pair, lot.Exchange, lot.Quantity, fmtEur(lot.EntryPrice), fmtEur(lot.CurrentPrice), fmtPct(lot.UnrealizedPct))
	}
	return b.String()
}

func (o *Orchestrator) cmdPosiciones(ctx context.Context) string {
	snap, ok := o.snapshot(ctx)
	if !ok || len(snap.OpenLots) == 0 {
		return "Sin posiciones abiertas."
	}
	var b strings.Builder
	b.WriteString("<b>Posiciones (máquina de salida)</b>\n")
	for _, lot := range snap.OpenLots {
		fmt.Fprintf(&b, "%s (%s): %s, stop %s\n", lot.Pair, lot.Exchange, lot.ExitState, fmtEur(lot.StopPrice))
	}
	return b.String()
}

func (o *Orchestrator) cmdGanancias(ctx context.Context) string {
	snap, ok := o.snapshot(ctx)
	if !ok {
		return "El motor de trading aún no está disponible."
	}
	return fmt.Sprintf("<b>Ganancias realizadas</b>\n%s (%s)", fmtEur(snap.RealizedPnLEur), fmtPct(snap.RealizedPnLPct))
}

func (o *Orchestrator) cmdExposicion(ctx context.Context) string {
	snap, ok := o.snapshot(ctx)
	if !ok {
		return "El motor de trading aún no está disponible."
	}
	return fmt.Sprintf("<b>Exposición</b>\n%s", fmtPct(snap.ExposurePct))
}

func (o *Orchestrator) cmdUltimas(ctx context.Context) string {
	events, err := o.repo.RecentEvents(ctx, 10)
	if err != nil || len(events) == 0 {
		return "Sin eventos recientes."
	}
	var b strings.Builder
	b.WriteString("<b>Últimos eventos</b>\n")
	for _, e := range events {
		fmt.Fprintf(&b, "[%s] %s — %s\n", e.Level, e.Type, orDash(e.Message))
	}
	return b.String()
}

func (o *Orchestrator) cmdLogs(ctx context.Context) string {
	events, err := o.repo.RecentEvents(ctx, 20)
	if err != nil {
		return "No se pudieron obtener los logs."
	}
	counts := map[string]int{}
	for _, e := range events {
		counts[e.Level]++
	}
	return fmt.Sprintf("<b>Logs recientes</b>\ninfo: %d, warn: %d, error: %d", counts["info"], counts["warn"], counts["error"])
}

func (o *Orchestrator) cmdLog(ctx context.Context, args string) string {
	id := strings.TrimSpace(args)
	if id == "" {
		return "Uso: /log <event_id>"
	}
	events, err := o.repo.RecentEvents(ctx, 200)
	if err != nil {
		return "No se pudo consultar el evento."
	}
	for _, e := range events {
		if e.EventID == id {
			return fmt.Sprintf("<b>%s</b>\n[%s] %s\n%s\nPar: %s\n%s",
				e.EventID, e.Level, e.Type, orDash(e.Message), orDash(e.Pair), fmtTime(e.Timestamp))
		}
	}
	return "Evento no encontrado entre los últimos 200."
}

func (o *Orchestrator) cmdConfig(ctx context.Context, chatID int64, args string) string {
	if !o.isAdmin(chatID) {
		return "Solo el operador puede modificar la configuración."
	}
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if parts[0] == "" {
		return "Uso: /config <clave> [valor]"
	}
	key := parts[0]
	if len(parts) == 1 {
		val, found, err := o.repo.GetConfigValue(ctx, key)
		if err != nil {
			return "No se pudo leer la configuración."
		}
		if !found {
			return fmt.Sprintf("%s no está definido.", key)
		}
		return fmt.Sprintf("%s = %s", key, val)
	}
	if err := o.repo.SetConfigValue(ctx, key, parts[1]); err != nil {
		return "No se pudo guardar la configuración."
	}
	return fmt.Sprintf("%s actualizado a %s", key, parts[1])
}

func (o *Orchestrator) cmdUptime() string {
	return fmt.Sprintf("Uptime: %s", time.Since(o.startedAt).Round(time.Second))
}

func (o *Orchestrator) cmdMenu() string {
	var b strings.Builder
	b.WriteString("<b>Comandos disponibles</b>\n")
	for _, c := range commandCatalog {
		fmt.Fprintf(&b, "/%s — %s\n", c.Name, c.Desc)
	}
	return b.String()
}

func (o *Orchestrator) cmdChannels(ctx context.Context, chatID int64, args string) string {
	if !o.isAdmin(chatID) {
		return "Solo el operador puede gestionar canales."
	}
	arg := strings.TrimSpace(args)
	switch {
	case arg == "" || arg == "list":
		chats, err := o.repo.EnabledChats(ctx)
		if err != nil {
			return "No se pudo listar los canales."
		}
		if len(chats) == 0 {
			return "Sin canales registrados."
		}
		var b strings.Builder
		b.WriteString("<b>Canales</b>\n")
		for _, c := range chats {
			fmt.Fprintf(&b, "%d — %s\n", c.ChatID, orDash(c.Label))
		}
		return b.String()
	case arg == "join":
		if err := o.repo.RegisterChat(ctx, chatID, "telegram"); err != nil {
			return "No se pudo registrar este canal."
		}
		return "Canal registrado para recibir notificaciones."
	case arg == "leave":
		if err := o.repo.DisableChat(ctx, chatID); err != nil {
			return "No se pudo dar de baja este canal."
		}
		return "Canal dado de baja."
	default:
		return "Uso: /channels [list|join|leave]"
	}
}

func (o *Orchestrator) cmdPausar(chatID int64) string {
	if !o.isAdmin(chatID) {
		return "Solo el operador puede pausar el bot."
	}
	o.mu.RLock()
	sp := o.status
	o.mu.RUnlock()
	if sp == nil {
		return "El motor de trading aún no está disponible."
	}
	sp.Pause()
	return "⏸ Bot pausado: no se abrirán nuevas posiciones."
}

func (o *Orchestrator) cmdReanudar(chatID int64) string {
	if !o.isAdmin(chatID) {
		return "Solo el operador puede reanudar el bot."
	}
	o.mu.RLock()
	sp := o.status
	o.mu.RUnlock()
	if sp == nil {
		return "El motor de trading aún no está disponible."
	}
	sp.Resume()
	return "▶️ Bot reanudado."
}

func (o *Orchestrator) cmdInformeFiscal(ctx context.Context) string {
	// The scheduler drives the actual report generation
	// (internal/scheduling); this command just acknowledges the request
	// since assembling and publishing the report is an async pipeline.
	return "Generación del informe fiscal solicitada; se publicará cuando esté listo."
}

func (o *Orchestrator) cmdRefreshCommands(chatID int64) string {
	if !o.isAdmin(chatID) {
		return "Solo el operador puede refrescar los comandos."
	}
	if o.bot == nil {
		return "Telegram no está habilitado."
	}
	if err := o.registerCommands(); err != nil {
		return "No se pudieron actualizar los comandos."
	}
	return "Comandos actualizados."
}
