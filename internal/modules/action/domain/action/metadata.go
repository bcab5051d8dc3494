package action

import (
	"encoding/json"
)

// 系统支持的动作类型常量定义
const (
	TypeEnvoyerEmail      = "ENVOYER_EMAIL"
	TypeGenererDevis      = "GENERER_DEVIS"
	TypeConvertirCandidat = "CONVERTIR_CANDIDAT"
	TypeRefuser           = "REFUSER"
	TypeRelancerProspect  = "RELANCER_PROSPECT"
)

// AllSupportedTypes 返回所有支持的动作类型及其描述
func AllSupportedTypes() map[string]string {
	return map[string]string{
		TypeEnvoyerEmail:      "Envoi d'un email au contact",
		TypeGenererDevis:      "Génération d'un devis PDF",
		TypeConvertirCandidat: "Conversion d'un candidat en stagiaire",
		TypeRefuser:           "Refus d'une candidature",
		TypeRelancerProspect:  "Relance commerciale d'un prospect",
	}
}

// IsValidType 校验动作类型是否有效
func IsValidType(t string) bool {
	_, ok := AllSupportedTypes()[t]
	return ok
}

// Metadonnees 按动作类型区分的元数据变体。线上格式保持自由 JSON，
// 进程内用具名结构表达，每种动作的字段可静态枚举。
type Metadonnees interface {
	ActionType() string
}

// EnvoyerEmailMeta ENVOYER_EMAIL 的元数据
type EnvoyerEmailMeta struct {
	ModeleEmail   string   `json:"modeleEmail"`
	Destinataires []string `json:"destinataires"`
	Objet         string   `json:"objet,omitempty"`
}

func (EnvoyerEmailMeta) ActionType() string { return TypeEnvoyerEmail }

// GenererDevisMeta GENERER_DEVIS 的元数据
type GenererDevisMeta struct {
	FormationId string  `json:"formationId"`
	MontantHT   float64 `json:"montantHT"`
	TauxTVA     float64 `json:"tauxTVA,omitempty"`
}

func (GenererDevisMeta) ActionType() string { return TypeGenererDevis }

// ConvertirCandidatMeta CONVERTIR_CANDIDAT 的元数据
type ConvertirCandidatMeta struct {
	SessionId   string `json:"sessionId"`
	DateEntree  string `json:"dateEntree,omitempty"`
	Financement string `json:"financement,omitempty"`
}

func (ConvertirCandidatMeta) ActionType() string { return TypeConvertirCandidat }

// RefuserMeta REFUSER 的元数据
type RefuserMeta struct {
	Motif        string `json:"motif"`
	EnvoyerEmail bool   `json:"envoyerEmail,omitempty"`
}

func (RefuserMeta) ActionType() string { return TypeRefuser }

// RelancerProspectMeta RELANCER_PROSPECT 的元数据
type RelancerProspectMeta struct {
	Canal    string `json:"canal"`
	Echeance string `json:"echeance,omitempty"`
}

func (RelancerProspectMeta) ActionType() string { return TypeRelancerProspect }

// RawMeta 未知动作类型的元数据原样保留，转发给工作流引擎时不丢字段
type RawMeta struct {
	Type    string
	Payload json.RawMessage
}

func (m RawMeta) ActionType() string { return m.Type }

func (m RawMeta) MarshalJSON() ([]byte, error) {
	if len(m.Payload) == 0 {
		return []byte("null"), nil
	}
	return m.Payload, nil
}

// ParseMetadonnees 按动作类型解码自由格式的元数据
func ParseMetadonnees(actionType string, raw json.RawMessage) (Metadonnees, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch actionType {
	case TypeEnvoyerEmail:
		var m EnvoyerEmailMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeGenererDevis:
		var m GenererDevisMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeConvertirCandidat:
		var m ConvertirCandidatMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeRefuser:
		var m RefuserMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeRelancerProspect:
		var m RelancerProspectMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return RawMeta{Type: actionType, Payload: raw}, nil
	}
}
