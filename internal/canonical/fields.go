package canonical

import (
	"strings"

	"github.com/dvloznov/statement-pipeline/internal/jsontree"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

// rootNode is the wrapper object statements are nested under.
const rootNode = "estado_de_cuenta"

// DefaultCurrency is used when a document carries no currency.
const DefaultCurrency = "CLP"

type field struct {
	name    string
	typ     fieldType
	aliases []string
}

// under builds the two aliases every statement field carries: the path
// under the wrapper node and the same path from the root.
func under(path string) []string {
	return []string{rootNode + "." + path, path}
}

// statementFields lists the canonical statement columns in output order.
// Identity columns (statement_id, data_source_hash, created_at) are filled
// by the builder and have no aliases.
var statementFields = []field{
	{"statement_id", typeRaw, nil},
	{"data_source_hash", typeRaw, nil},
	{"created_at", typeRaw, nil},
	{"cardholder_name", typeStr, under("nombre_del_titular")},
	{"card_number_masked", typeCardMask, under("numero_de_tarjeta")},
	{"statement_date", typeDate, under("fecha")},
	{"billing_period_start", typeDate, under("informacion_general.periodo_facturado.desde")},
	{"billing_period_end", typeDate, under("informacion_general.periodo_facturado.hasta")},
	{"due_date", typeDate, under("informacion_general.pagar_hasta")},
	{"address_line", typeStr, under("direccion")},
	{"commune", typeStr, under("comuna")},
	{"total_credit_limit", typeMoney, under("informacion_general.cupo_total")},
	{"used_credit", typeMoney, under("informacion_general.cupo_utilizado")},
	{"available_credit", typeMoney, under("informacion_general.cupo_disponible")},
	{"cash_advance_limit", typeMoney, under("informacion_general.cupo_total_avance_en_efectivo")},
	{"cash_advance_used", typeMoney, under("informacion_general.cupo_utilizado_avance_en_efectivo")},
	{"cash_advance_available", typeMoney, under("informacion_general.cupo_disponible_avance_en_efectivo")},
	{"rate_rotating_interest_pct", typePct, under("informacion_general.tasas.rotativo.interes")},
	{"rate_rotating_cae_pct", typePct, under("informacion_general.tasas.rotativo.cae")},
	{"rate_installment_interest_pct", typePct, under("informacion_general.tasas.compra_en_cuotas.interes")},
	{"rate_installment_cae_pct", typePct, under("informacion_general.tasas.compra_en_cuotas.cae")},
	{"rate_cash_advance_interest_pct", typePct, under("informacion_general.tasas.avance_en_cuotas.interes")},
	{"rate_cash_advance_cae_pct", typePct, under("informacion_general.tasas.avance_en_cuotas.cae")},
	{"rate_prepayment_cae_pct", typePct, under("informacion_general.tasas.prepago.cae")},
	{"prev_period_start", typeDate, under("detalle.periodo_anterior.inicio")},
	{"prev_period_end", typeDate, under("detalle.periodo_anterior.fin")},
	{"prev_opening_balance", typeMoney, under("detalle.periodo_anterior.saldo_inicio")},
	{"prev_billed_amount_A", typeMoney, under("detalle.periodo_anterior.monto_facturado_A")},
	{"prev_paid_amount", typeMoney, under("detalle.periodo_anterior.monto_pagado")},
	{"prev_closing_balance", typeMoney, under("detalle.periodo_anterior.saldo_final")},
	{"current_ops_total", typeMoney, under("detalle.periodo_actual.operaciones.total")},
	{"billed_amount", typeMoney, under("informacion_de_pago.monto_facturado")},
	{"minimum_payment", typeMoney, under("informacion_de_pago.monto_minimo")},
	{"prepayment_cost", typeMoney, under("informacion_de_pago.costo_prepago")},
	{"autodebit_amount", typeMoney, under("informacion_de_pago.cargo_automatico")},
	{"next_billing_start", typeDate, under("informacion_de_pago.proximo_periodo_facturacion.desde")},
	{"next_billing_end", typeDate, under("informacion_de_pago.proximo_periodo_facturacion.hasta")},
	{"late_interest_rate_pct", typePct, under("costos_por_atraso.interes_moratorio")},
	{"collection_fee_to_10_uf_pct", typePct, under("costos_por_atraso.cargo_de_cobranza.hasta_10_uf")},
	{"collection_fee_10_to_50_uf_pct", typePct, under("costos_por_atraso.cargo_de_cobranza.entre_10_y_50_uf")},
	{"collection_fee_over_50_uf_pct", typePct, under("costos_por_atraso.cargo_de_cobranza.excedan_50_uf")},
	{"currency_code", typeStr, nil},
}

// itemFields lists the alias-resolved item columns. Identity and position
// columns are filled by the builder.
var itemFields = []field{
	{"transaction_date", typeItemDate, []string{"fecha"}},
	{"transaction_place", typeStr, []string{"lugar_operacion", "transaction_place", "comercio"}},
	{"code", typeStr, []string{"codigo"}},
	{"reference", typeStr, []string{"referencia"}},
	{"description", typeStr, []string{"descripcion"}},
	{"operation_amount", typeMoney, []string{"monto_operacion"}},
	{"total_amount_due", typeMoney, []string{"monto_total_a_pagar"}},
	{"installment_number", typeStr, []string{"numero_cuota"}},
	{"monthly_installment_value", typeMoney, []string{"valor_cuota_mensual"}},
	{"currency_code", typeStr, []string{"moneda"}},
}

var (
	// StatementColumns is the schema of the statements table.
	StatementColumns = columnsOf(statementFields)

	// ItemColumns is the schema of the statement_items table.
	ItemColumns = []tables.Column{
		{Name: "item_id"},
		{Name: "statement_id"},
		{Name: "data_source_hash"},
		{Name: "created_at"},
		{Name: "ingestion_ts"},
		{Name: "raw_bucket_path"},
		{Name: "category"},
		{Name: "line_order", Kind: tables.Int},
		{Name: "transaction_date"},
		{Name: "transaction_place"},
		{Name: "code"},
		{Name: "reference"},
		{Name: "description"},
		{Name: "operation_amount", Kind: tables.Float},
		{Name: "total_amount_due", Kind: tables.Float},
		{Name: "installment_number"},
		{Name: "monthly_installment_value", Kind: tables.Float},
		{Name: "currency_code"},
		{Name: "sign", Kind: tables.Int},
		{Name: "year", Kind: tables.Int},
	}

	// DueColumns is the schema of the statement_upcoming_dues table.
	DueColumns = []tables.Column{
		{Name: "due_id"},
		{Name: "statement_id"},
		{Name: "data_source_hash"},
		{Name: "created_at"},
		{Name: "ingestion_ts"},
		{Name: "raw_bucket_path"},
		{Name: "month_label"},
		{Name: "due_amount", Kind: tables.Float},
		{Name: "currency_code"},
		{Name: "line_order", Kind: tables.Int},
		{Name: "year", Kind: tables.Int},
	}
)

func columnsOf(fields []field) []tables.Column {
	cols := make([]tables.Column, len(fields))
	for i, f := range fields {
		kind := tables.String
		switch f.typ {
		case typeMoney, typePct:
			kind = tables.Float
		case typeInt:
			kind = tables.Int
		}
		cols[i] = tables.Column{Name: f.name, Kind: kind}
	}
	return cols
}

// Resolve returns the first non-null value among aliases. Every alias is
// first tried as an absolute path; single-segment aliases are then tried
// under the wrapper node and finally at the root.
func Resolve(root jsontree.Value, aliases []string) (jsontree.Value, bool) {
	for _, a := range aliases {
		if v, ok := root.Get(a); ok {
			return v, true
		}
	}
	node, _ := root.Child(rootNode)
	for _, a := range aliases {
		if strings.Contains(a, ".") {
			continue
		}
		if v, ok := node.Child(a); ok {
			return v, true
		}
		if v, ok := root.Child(a); ok {
			return v, true
		}
	}
	return jsontree.Value{}, false
}
