package haier

import "encoding/json"

type TokenInfo struct {
	AccountToken string `json:"accountToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type UserInfo struct {
	UserId   string `json:"userId"`
	Mobile   string `json:"mobile"`
	Username string `json:"username"`
}

type DeviceInfo struct {
	DeviceId    string `json:"deviceId"`
	DeviceName  string `json:"deviceName"`
	DeviceType  string `json:"deviceType"`
	ProductCode string `json:"productCodeT"`
	ProductName string `json:"productNameT,omitempty"`
	WifiType    string `json:"wifiType"`
	Virtual     bool   `json:"virtual,omitempty"`
}

type envelope struct {
	RetCode string `json:"retCode"`
	RetInfo string `json:"retInfo"`
}

type refreshTokenResponse struct {
	Data struct {
		TokenInfo TokenInfo `json:"tokenInfo"`
	} `json:"data"`
}

type userInfoResponse struct {
	UserInfo
	ErrorDescription *string `json:"error_description"`
}

type devicesResponse struct {
	DeviceInfos []DeviceInfo `json:"deviceinfos"`
}

type digitalModelResponse struct {
	DetailInfo map[string]string `json:"detailInfo"`
}

type digitalModel struct {
	Attributes []json.RawMessage `json:"attributes"`
}

type gatewayResponse struct {
	AgAddr string `json:"agAddr"`
}
