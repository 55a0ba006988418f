package backend

// ServiceDetail: детали сервиса, возвращаемые бэкендом.
type ServiceDetail struct {
	ServiceID              string `json:"service_id"`
	ServiceName            string `json:"service_name"`
	OrganizationName       string `json:"organization_name"`
	OrganizationFiscalCode string `json:"organization_fiscal_code"`
	DepartmentName         string `json:"department_name"`
	Version                int    `json:"version"`
}

// StartStatus: результат запроса на старт активации.
type StartStatus string

const (
	StartProcessing    StartStatus = "PROCESSING"
	StartIneligible    StartStatus = "INELIGIBLE"
	StartAlreadyActive StartStatus = "ALREADY_ACTIVE"
)

// ActivationStatus: результат проверки статуса активации карты (CGN, EYCA).
type ActivationStatus string

const (
	ActivationCompleted  ActivationStatus = "COMPLETED"
	ActivationProcessing ActivationStatus = "PROCESSING"
	ActivationError      ActivationStatus = "ERROR"
	ActivationNotFound   ActivationStatus = "NOT_FOUND"
)

// EligibilityStatus: результат проверки права на bonus vacanze.
type EligibilityStatus string

const (
	EligibilityEligible     EligibilityStatus = "ELIGIBLE"
	EligibilityIneligible   EligibilityStatus = "INELIGIBLE"
	EligibilityIseeNotFound EligibilityStatus = "ISEE_NOT_FOUND"
	EligibilityProcessing   EligibilityStatus = "PROCESSING"
	EligibilityNotFound     EligibilityStatus = "NOT_FOUND"
)

// статусы в теле ответа бэкенда
const (
	remoteCompleted = "COMPLETED"
	remoteError     = "ERROR"
	remotePending   = "PENDING"
	remoteRunning   = "RUNNING"
)

type activationDetail struct {
	Status string `json:"status"`
}

type eligibilityCheck struct {
	Status string `json:"status"`
}
