package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Machine is a piece of production or laboratory equipment.
type Machine struct {
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	MachineType      string     `json:"machine_type,omitempty"`
	Description      string     `json:"description,omitempty"`
	Model            string     `json:"model,omitempty"`
	Manufacturer     string     `json:"manufacturer,omitempty"`
	Location         string     `json:"location,omitempty"`
	ResponsibleParty string     `json:"responsible_party,omitempty"`
	SerialNumber     string     `json:"serial_number,omitempty"`
	Status           string     `json:"status,omitempty"`
	InstallDate      *time.Time `json:"install_date,omitempty"`
	WarrantyUntil    *time.Time `json:"warranty_until,omitempty"`
	IsCritical       bool       `json:"is_critical,omitempty"`
}

// Asset is a tracked fixed asset. Machines are assets too, but an asset
// need not be a machine.
type Asset struct {
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	AssetType    string     `json:"asset_type,omitempty"`
	Description  string     `json:"description,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Location     string     `json:"location,omitempty"`
	Status       string     `json:"status,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	RiskScore    *int       `json:"risk_score,omitempty"`
}

// Part is a spare part or consumable held in stock.
type Part struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	Description   string   `json:"description,omitempty"`
	Barcode       string   `json:"barcode,omitempty"`
	SerialOrLot   string   `json:"serial_or_lot,omitempty"`
	Supplier      string   `json:"supplier,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	Stock         *int     `json:"stock,omitempty"`
	MinStockAlert *int     `json:"min_stock_alert,omitempty"`
	Location      string   `json:"location,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// Setting is one configuration value of the plant system.
type Setting struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	DefaultValue string `json:"default_value,omitempty"`
	ValueType    string `json:"value_type,omitempty"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	IsSensitive  bool   `json:"is_sensitive,omitempty"`
	Status       string `json:"status,omitempty"`
}

var (
	machineStatuses = []string{"active", "maintenance", "reserved", "out_of_service", "decommissioned"}
	assetStatuses   = []string{"active", "maintenance", "retired", "disposed"}
	partStatuses    = []string{"active", "blocked", "obsolete"}
	settingStatuses = []string{"active", "inactive", "pending_approval"}
)

func (m Machine) Validate() error {
	if err := requireCodeName(m.Code, m.Name); err != nil {
		return err
	}
	return checkStatus(m.Status, machineStatuses)
}

func (m Machine) DisplayName() (string, bool) { return codeName(m.Code, m.Name) }

func (a Asset) Validate() error {
	if err := requireCodeName(a.Code, a.Name); err != nil {
		return err
	}
	if a.RiskScore != nil && (*a.RiskScore < 0 || *a.RiskScore > 100) {
		return fmt.Errorf("risk_score must be between 0 and 100, got %d", *a.RiskScore)
	}
	return checkStatus(a.Status, assetStatuses)
}

func (a Asset) DisplayName() (string, bool) { return codeName(a.Code, a.Name) }

func (p Part) Validate() error {
	if err := requireCodeName(p.Code, p.Name); err != nil {
		return err
	}
	if p.Price != nil && *p.Price < 0 {
		return errors.New("price must not be negative")
	}
	if p.Stock != nil && *p.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	if p.MinStockAlert != nil && *p.MinStockAlert < 0 {
		return errors.New("min_stock_alert must not be negative")
	}
	return checkStatus(p.Status, partStatuses)
}

func (p Part) DisplayName() (string, bool) { return codeName(p.Code, p.Name) }

func (s Setting) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return errors.New("key is required")
	}
	if err := checkValueType(s.ValueType, s.Value); err != nil {
		return err
	}
	return checkStatus(s.Status, settingStatuses)
}

func (s Setting) DisplayName() (string, bool) {
	if strings.TrimSpace(s.Key) == "" {
		return "", false
	}
	return s.Key, true
}

func requireCodeName(code, name string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("code is required")
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	return nil
}

func codeName(code, name string) (string, bool) {
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	switch {
	case name != "" && code != "":
		return name + " (" + code + ")", true
	case name != "":
		return name, true
	case code != "":
		return code, true
	}
	return "", false
}

func checkStatus(status string, allowed []string) error {
	if status == "" {
		return nil
	}
	for _, s := range allowed {
		if status == s {
			return nil
		}
	}
	return fmt.Errorf("status %q is not one of %s", status, strings.Join(allowed, ", "))
}

func checkValueType(valueType, value string) error {
	var err error
	switch valueType {
	case "", "string", "json":
	case "int":
		_, err = strconv.ParseInt(value, 10, 64)
	case "bool":
		_, err = strconv.ParseBool(value)
	case "decimal":
		_, err = strconv.ParseFloat(value, 64)
	default:
		return fmt.Errorf("unknown value_type %q", valueType)
	}
	if err != nil {
		return fmt.Errorf("value %q is not a valid %s", value, valueType)
	}
	return nil
}
