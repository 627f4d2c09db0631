// SPDX-License-Identifier: MIT
// Package tui provides an interactive device browser for picking the
// capture device and sample rate before starting a monitoring session.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lfnmon/internal/audio"
	"lfnmon/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5A56E0")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

// candidateRates are the sample rates offered on the detail screen, in
// the order the negotiator would try common hardware rates.
var candidateRates = []float64{config.DefaultSampleRate, 48000, 88200, 96000, 192000}

// DeviceBrowserModel is the Bubble Tea model for browsing capture devices.
type DeviceBrowserModel struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	// Sample rate choice on the detail screen.
	selectedRate float64
	rateIndex    int
}

// NewDeviceBrowserModel creates the initial model.
func NewDeviceBrowserModel() DeviceBrowserModel {
	return DeviceBrowserModel{
		selectedIndex: 0,
		activeScreen:  ListScreen,
	}
}

// Init initializes the Bubble Tea model
func (m DeviceBrowserModel) Init() tea.Cmd {
	return fetchDevices
}

func fetchDevices() tea.Msg {
	devices, err := audio.HostDevices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// Update handles input and updates the model
func (m DeviceBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
			if len(m.devices) > 0 {
				m.viewport.SetContent(m.renderDevices())
			}
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		if m.ready {
			m.viewport.SetContent(m.renderDevices())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.viewport.SetContent(m.renderDevices())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
					m.viewport.SetContent(m.renderDevices())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.devices) > 0 && m.devices[m.selectedIndex].MaxInputChannels > 0 {
					m.activeScreen = DetailScreen
					m.selectedRate = m.devices[m.selectedIndex].DefaultSampleRate
					m.rateIndex = 0
					for i, rate := range candidateRates {
						if rate == m.selectedRate {
							m.rateIndex = i
							break
						}
					}
					m.viewport.SetContent(m.renderDeviceDetail())
				}
			}

		case DetailScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				m.activeScreen = ListScreen
				m.viewport.SetContent(m.renderDevices())

			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.rateIndex > 0 {
					m.rateIndex--
					m.selectedRate = candidateRates[m.rateIndex]
					m.viewport.SetContent(m.renderDeviceDetail())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.rateIndex < len(candidateRates)-1 {
					m.rateIndex++
					m.selectedRate = candidateRates[m.rateIndex]
					m.viewport.SetContent(m.renderDeviceDetail())
				}
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the UI
func (m DeviceBrowserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Capture Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • q: Quit")
	} else {
		title = titleStyle.Render("Device Details")
		help = infoStyle.Render("↑/↓: Sample Rate • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list. Devices without input channels
// are shown dimmed; they cannot be monitored.
func (m DeviceBrowserModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceType := ""
		switch {
		case device.MaxInputChannels > 0 && device.MaxOutputChannels > 0:
			deviceType = "Input/Output"
		case device.MaxInputChannels > 0:
			deviceType = "Input"
		case device.MaxOutputChannels > 0:
			deviceType = "Output"
		}

		entry := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, deviceType)
		entry += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		entry += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		switch {
		case i == m.selectedIndex:
			entry = highlightStyle.Render(entry)
		case device.MaxInputChannels == 0:
			entry = dimStyle.Render(entry)
		}

		sb.WriteString(entry)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDeviceDetail shows what a monitoring session on this device would
// use: the capture channel count and the candidate sample rates.
func (m DeviceBrowserModel) renderDeviceDetail() string {
	device := m.devices[m.selectedIndex]
	channels := min(device.MaxInputChannels, config.MaxInputStreams)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Device: %s\n", device.Name))
	sb.WriteString(fmt.Sprintf("Capture channels: %d of %d\n\n", channels, device.MaxInputChannels))
	sb.WriteString("Sample Rate:\n")

	for i, rate := range candidateRates {
		marker := " "
		if i == m.rateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz", marker, rate)
		if rate == device.DefaultSampleRate {
			line += " (device default)"
		}
		line += "\n"

		if i == m.rateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}

	sb.WriteString(fmt.Sprintf("\nStart with: lfnmon --device %d --sample-rate %.0f\n",
		device.ID, m.selectedRate))
	return sb.String()
}

// StartDeviceBrowser launches the interactive device browser.
func StartDeviceBrowser() error {
	p := tea.NewProgram(
		NewDeviceBrowserModel(),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
