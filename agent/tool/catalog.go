package tool

import (
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

// ToolInfos describes every action to the policy model, in
// contractx.ActionNames order. The user identity is never a parameter; the
// executor takes it from the turn.
func ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(contractx.ActionNames))
	for _, name := range contractx.ActionNames {
		infos = append(infos, toolInfo(name))
	}
	return infos
}

func toolInfo(name contractx.ActionName) *schema.ToolInfo {
	switch name {
	case contractx.ActionKnowledgeLookup:
		return &schema.ToolInfo{
			Name: string(name),
			Desc: "Consulta la base de conocimientos para obtener contexto y responder preguntas del usuario. " +
				"Úsala para obtener información sobre el menú, horarios, o cualquier dato sobre La Semilla Café.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_query": {Type: schema.String, Desc: "Pregunta del usuario", Required: true},
			}),
		}
	case contractx.ActionAddToCart:
		return &schema.ToolInfo{
			Name: string(name),
			Desc: "Añade un producto con su cantidad al carrito de compras del usuario. " +
				"Usa esta herramienta cuando el usuario pida explícitamente agregar algo a su pedido.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"item_name": {Type: schema.String, Desc: "Nombre del producto", Required: true},
				"quantity":  {Type: schema.Integer, Desc: "Cantidad a añadir, mayor que cero", Required: true},
			}),
		}
	case contractx.ActionViewCart:
		return &schema.ToolInfo{
			Name: string(name),
			Desc: "Muestra el contenido actual del carrito de compras del usuario, incluyendo productos, cantidades y subtotal. " +
				"Usa esta herramienta si el usuario pregunta qué hay en su carrito o cuál es el total hasta ahora.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		}
	case contractx.ActionCheckout:
		return &schema.ToolInfo{
			Name: string(name),
			Desc: "Finaliza el pedido del usuario, genera un enlace de pago y vacía el carrito. " +
				"Usa esta herramienta SOLO cuando el usuario confirme explícitamente que quiere pagar o finalizar su pedido.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		}
	case contractx.ActionTalkToHuman:
		return &schema.ToolInfo{
			Name: string(name),
			Desc: "Transfiere la conversación a un agente humano cuando el usuario lo solicita o tiene un problema complejo. " +
				"Usa esta herramienta si el usuario pide hablar con una persona o si sus preguntas están fuera de tu alcance.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"reason": {Type: schema.String, Desc: "Motivo de la solicitud", Required: true},
			}),
		}
	default:
		return nil
	}
}
